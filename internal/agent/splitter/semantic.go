package splitter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/document-chunker/internal/agent/embedding"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

var errNoEmbedder = errors.New("no embedding provider configured")

// semantic splits text into pieces, embeds a window around each piece and
// cuts wherever the distance to the next window exceeds the percentile
// threshold. It returns the grouped texts in order.
func (s *Splitter) semantic(ctx context.Context, text string, buffer int, percentile float64) ([]string, error) {
	pieces, err := s.chars.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	pieces = slices.DeleteFunc(pieces, func(p string) bool { return strings.TrimSpace(p) == "" })
	if len(pieces) <= 1 {
		return []string{text}, nil
	}

	windows := combine(pieces, buffer)
	if err := s.embedWindows(ctx, windows); err != nil {
		return nil, err
	}
	distances, err := distancesToNext(windows)
	if err != nil {
		return nil, err
	}
	threshold := percentileOf(distances, percentile)

	var groups []string
	start := 0
	for i, d := range distances {
		if d > threshold {
			groups = append(groups, s.join(pieces[start:i+1]))
			start = i + 1
		}
	}
	groups = append(groups, s.join(pieces[start:]))

	s.logger.Debug("Semantic split",
		logger.Int("pieces", len(pieces)),
		logger.Int("groups", len(groups)),
		logger.Float64("threshold", threshold),
	)
	return groups, nil
}

// combine builds one window per piece from the piece and up to buffer
// neighbours on each side.
func combine(pieces []string, buffer int) []models.SentenceWindow {
	windows := make([]models.SentenceWindow, len(pieces))
	for i, p := range pieces {
		lo, hi := max(0, i-buffer), min(len(pieces), i+buffer+1)
		windows[i] = models.SentenceWindow{
			Sentence:         p,
			Index:            i,
			CombinedSentence: strings.Join(pieces[lo:hi], " "),
		}
	}
	return windows
}

func (s *Splitter) embedWindows(ctx context.Context, windows []models.SentenceWindow) error {
	texts := make([]string, len(windows))
	for i, w := range windows {
		texts[i] = w.CombinedSentence
	}
	vecs, err := s.embedBatch(ctx, texts)
	if err != nil {
		return err
	}
	for i := range windows {
		windows[i].Embedding = vecs[i]
	}
	return nil
}

func (s *Splitter) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if s.embedder == nil {
		return nil, errNoEmbedder
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
	defer cancel()
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// distancesToNext sets DistanceToNext on every window but the last and
// returns those distances.
func distancesToNext(windows []models.SentenceWindow) ([]float64, error) {
	distances := make([]float64, 0, len(windows)-1)
	for i := 0; i+1 < len(windows); i++ {
		sim, err := embedding.CosineSimilarity(windows[i].Embedding, windows[i+1].Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to compare windows %d and %d: %w", i, i+1, err)
		}
		windows[i].DistanceToNext = 1 - sim
		distances = append(distances, 1-sim)
	}
	return distances, nil
}

// percentileOf interpolates linearly between order statistics and falls
// back to the median when interpolation is undefined.
func percentileOf(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 || hi >= len(sorted) || math.IsNaN(rank) {
		return median(sorted)
	}
	v := sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
	if math.IsNaN(v) {
		return median(sorted)
	}
	return v
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// join concatenates consecutive pieces, dropping the text each piece
// repeats from the end of the previous one.
func (s *Splitter) join(pieces []string) string {
	var b strings.Builder
	prev := ""
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if prev != "" {
			p = trimOverlap(prev, p, 4*s.cfg.ChunkOverlap)
		}
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
		prev = p
	}
	return b.String()
}

// trimOverlap removes the longest prefix of next, up to limit bytes and
// ending on a word boundary, that prev already ends with.
func trimOverlap(prev, next string, limit int) string {
	for k := min(len(prev), len(next), limit); k > 0; k-- {
		if !strings.HasSuffix(prev, next[:k]) {
			continue
		}
		if k < len(next) && !isSpace(next[k]) {
			continue
		}
		if k < len(prev) && !isSpace(prev[len(prev)-k-1]) {
			continue
		}
		return strings.TrimSpace(next[k:])
	}
	return next
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// merge folds a chunk shorter than MinChunkSize into the next one when
// canMerge allows it and either the result stays under MaxMergedSize or the
// two embeddings are more similar than MergeSimilarity. It repeats until no
// pair qualifies.
func (s *Splitter) merge(ctx context.Context, chunks []models.Chunk, canMerge func(a, b models.Chunk) bool) ([]models.Chunk, error) {
	cache := make(map[string][]float64)
	vector := func(text string) ([]float64, error) {
		if v, ok := cache[text]; ok {
			return v, nil
		}
		vecs, err := s.embedBatch(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		cache[text] = vecs[0]
		return vecs[0], nil
	}

	for {
		merged := false
		for i := 0; i+1 < len(chunks); i++ {
			a, b := chunks[i], chunks[i+1]
			if runes(a.Text) >= s.cfg.MinChunkSize || !canMerge(a, b) {
				continue
			}
			combined := a.Text + " " + b.Text
			ok := runes(combined) < s.cfg.MaxMergedSize
			if !ok {
				va, err := vector(a.Text)
				if err != nil {
					return nil, err
				}
				vb, err := vector(b.Text)
				if err != nil {
					return nil, err
				}
				sim, err := embedding.CosineSimilarity(va, vb)
				if err != nil {
					return nil, fmt.Errorf("failed to compare chunks %d and %d: %w", i, i+1, err)
				}
				ok = sim > s.cfg.MergeSimilarity
			}
			if !ok {
				continue
			}
			chunks[i].Text = combined
			chunks[i].Metadata.Merged = true
			chunks = slices.Delete(chunks, i+1, i+2)
			merged = true
			break
		}
		if !merged {
			return chunks, nil
		}
	}
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}
