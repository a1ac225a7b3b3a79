package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/metrics"
)

const DefaultOpenAIModel = openai.SmallEmbedding3

// OpenAI embeds through the OpenAI embeddings endpoint, or any server
// compatible with it when BaseURL is set.
type OpenAI struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	logger     logger.Logger
}

func NewOpenAI(cfg Config, log logger.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", document.ErrCollaboratorUnavailable)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := openai.EmbeddingModel(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
		logger:     log.Named("openai-embedding"),
	}, nil
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, batch := range batches(texts, o.batchSize) {
		vecs, err := o.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (o *OpenAI) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimensions is the configured size, or 0 when the model default is used.
func (o *OpenAI) Dimensions() int {
	return o.dimensions
}

func (o *OpenAI) embedWithRetry(ctx context.Context, batch []string) ([][]float64, error) {
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, o.retryDelay, attempt); err != nil {
				return nil, err
			}
		}
		vecs, err := o.embed(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
		o.logger.Warn("Embedding request failed",
			logger.Int("attempt", attempt+1),
			logger.Int("batch", len(batch)),
			logger.Error(err),
		)
	}
	return nil, fmt.Errorf("%w: failed to embed after %d attempts: %v", document.ErrCollaboratorUnavailable, o.maxRetries+1, lastErr)
}

func (o *OpenAI) embed(ctx context.Context, batch []string) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      batch,
		Model:      o.model,
		Dimensions: o.dimensions,
	})
	metrics.RecordEmbedding("openai", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(batch))
	}

	out := make([][]float64, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vec := make([]float64, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float64(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
