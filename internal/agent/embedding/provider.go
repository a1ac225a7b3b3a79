// Package embedding provides the text embedding backends used by the
// semantic splitter.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

// Provider turns text into vectors. EmbedBatch returns one vector per input,
// in input order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	EmbedOne(ctx context.Context, text string) ([]float64, error)
	Dimensions() int
}

// Config selects and configures a provider.
type Config struct {
	Provider   string        `yaml:"provider"` // openai, ollama or hashing
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"apiKey"`
	BaseURL    string        `yaml:"baseURL"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batchSize"`
	MaxRetries int           `yaml:"maxRetries"`
	RetryDelay time.Duration `yaml:"retryDelay"`
	PoolSize   int           `yaml:"poolSize"`
	Timeout    time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Provider:   "hashing",
		Dimensions: 256,
		BatchSize:  64,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		PoolSize:   4,
		Timeout:    60 * time.Second,
	}
}

// New builds the provider named by cfg.Provider.
func New(cfg Config, log logger.Logger) (Provider, error) {
	if log == nil {
		log = logger.NewNop()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAI(cfg, log)
	case "ollama":
		return NewOllama(cfg, log)
	case "", "hashing":
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = def.Dimensions
		}
		return NewHashing(dims), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", document.ErrCollaboratorUnavailable, cfg.Provider)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b. It
// fails on length mismatch and on zero vectors.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("zero vector")
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// batches cuts texts into consecutive slices of at most size.
func batches(texts []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(texts); start += size {
		out = append(out, texts[start:min(start+size, len(texts))])
	}
	return out
}

// backoff grows the delay linearly with the attempt number.
func backoff(ctx context.Context, base time.Duration, attempt int) error {
	t := time.NewTimer(base * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
