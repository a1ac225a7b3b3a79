package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/metrics"
)

const (
	DefaultOllamaEndpoint = "http://localhost:11434"
	DefaultOllamaModel    = "nomic-embed-text"
)

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// ollamaClient is one HTTP client bound to an Ollama server.
type ollamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

func (c *ollamaClient) embed(ctx context.Context, texts []string) ([][]float64, error) {
	reqData, err := json.Marshal(ollamaRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/embed", bytes.NewReader(reqData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", result.Error)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

// Ollama embeds through a local Ollama server. Requests are spread over a
// fixed pool of clients; callers wait for a free one.
type Ollama struct {
	clients     chan *ollamaClient
	poolTimeout time.Duration
	dimensions  int
	batchSize   int
	maxRetries  int
	retryDelay  time.Duration
	logger      logger.Logger
}

func NewOllama(cfg Config, log logger.Logger) (*Ollama, error) {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}

	o := &Ollama{
		clients:     make(chan *ollamaClient, cfg.PoolSize),
		poolTimeout: cfg.Timeout,
		dimensions:  cfg.Dimensions,
		batchSize:   cfg.BatchSize,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		logger:      log.Named("ollama-embedding"),
	}
	for i := 0; i < cfg.PoolSize; i++ {
		o.clients <- &ollamaClient{
			endpoint:   endpoint,
			model:      model,
			httpClient: &http.Client{Timeout: cfg.Timeout},
		}
	}
	return o, nil
}

func (o *Ollama) get(ctx context.Context) (*ollamaClient, error) {
	t := time.NewTimer(o.poolTimeout)
	defer t.Stop()
	select {
	case c := <-o.clients:
		return c, nil
	case <-t.C:
		return nil, fmt.Errorf("%w: timeout waiting for available client", document.ErrCollaboratorUnavailable)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Ollama) put(c *ollamaClient) {
	select {
	case o.clients <- c:
	default:
	}
}

func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	client, err := o.get(ctx)
	if err != nil {
		return nil, err
	}
	defer o.put(client)

	out := make([][]float64, 0, len(texts))
	for _, batch := range batches(texts, o.batchSize) {
		var (
			vecs    [][]float64
			lastErr error
		)
		for attempt := 0; attempt <= o.maxRetries; attempt++ {
			if attempt > 0 {
				if err := backoff(ctx, o.retryDelay, attempt); err != nil {
					return nil, err
				}
			}
			start := time.Now()
			vecs, lastErr = client.embed(ctx, batch)
			metrics.RecordEmbedding("ollama", lastErr, time.Since(start))
			if lastErr == nil {
				break
			}
			o.logger.Warn("Embedding request failed",
				logger.Int("attempt", attempt+1),
				logger.Int("batch", len(batch)),
				logger.Error(lastErr),
			)
		}
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %v", document.ErrCollaboratorUnavailable, lastErr)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (o *Ollama) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (o *Ollama) Dimensions() int {
	return o.dimensions
}

// Close drops idle connections of every pooled client.
func (o *Ollama) Close() error {
	for {
		select {
		case c := <-o.clients:
			c.httpClient.CloseIdleConnections()
		default:
			return nil
		}
	}
}
