package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hashing is a deterministic, offline provider. Each lower-cased word is
// hashed into one signed bucket and the vector is L2 normalized, so texts
// sharing vocabulary land close together.
type Hashing struct {
	dims int
}

func NewHashing(dims int) *Hashing {
	return &Hashing{dims: dims}
}

func (h *Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hashing) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

func (h *Hashing) Dimensions() int {
	return h.dims
}

func (h *Hashing) vector(text string) []float64 {
	vec := make([]float64, h.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		if t := strings.TrimSpace(text); t != "" {
			tokens = []string{t}
		}
	}
	for _, tok := range tokens {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
