package document

import (
	"context"
	"fmt"
	"io"

	"github.com/feichai0017/document-chunker/config"
	"github.com/feichai0017/document-chunker/internal/agent"
	"github.com/feichai0017/document-chunker/internal/agent/embedding"
	"github.com/feichai0017/document-chunker/internal/agent/splitter"
	"github.com/feichai0017/document-chunker/pkg/fetch"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/queue"
	"github.com/feichai0017/document-chunker/pkg/storage"
)

// Components are the long-lived collaborators built from a Config. Close
// releases them in reverse order of construction.
type Components struct {
	Service  *DocumentService
	Pipeline *agent.Pipeline
	Queue    *queue.AsynqQueue
	Storage  storage.Storage

	closers []io.Closer
}

// NewPipeline builds the extract-and-chunk pipeline alone. extra object
// stores are made reachable to the fetcher under their scheme.
func NewPipeline(ctx context.Context, c *config.Config, log logger.Logger, stores map[string]fetch.ObjectStore) (*agent.Pipeline, []io.Closer, error) {
	factory, err := agent.NewDefaultFactory(ctx, c.Factory(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize processor factory: %w", err)
	}
	closers := []io.Closer{factory}

	embedder, err := embedding.New(c.Embedding, log)
	if err != nil {
		_ = factory.Close()
		return nil, nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if cl, ok := embedder.(io.Closer); ok {
		closers = append(closers, cl)
	}

	opts := []fetch.Option{fetch.WithMaxBytes(c.Pipeline.MaxFetchBytes)}
	for scheme, s := range stores {
		opts = append(opts, fetch.WithStore(scheme, s))
	}
	p := agent.NewPipeline(factory, splitter.New(c.Splitter, embedder, log), fetch.New(log, opts...), log)
	return p, closers, nil
}

// GetService wires storage, queue and pipeline from c.
func GetService(ctx context.Context, c *config.Config, log logger.Logger) (*Components, error) {
	store, err := storage.NewStorage(ctx, c.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	q, err := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:      c.Redis.Addr,
		RedisPassword:  c.Redis.Password,
		RedisDB:        c.Redis.DB,
		ProcessTimeout: c.Pipeline.ProcessTimeout,
		StatusTTL:      c.Redis.StatusTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	scheme := c.Storage.Type
	if scheme == "" {
		scheme = string(storage.StorageTypeS3)
	}
	pipeline, closers, err := NewPipeline(ctx, c, log, map[string]fetch.ObjectStore{scheme: store})
	if err != nil {
		_ = q.Close()
		return nil, err
	}

	svc := NewService(pipeline, q, store, log, &ServiceConfig{
		MaxFileSize:     c.Server.MaxUploadSize,
		QueuePriority:   2,
		MaxConcurrent:   c.Pipeline.MaxConcurrent,
		RetentionPeriod: c.Pipeline.RetentionPeriod,
		Options:         c.Options(),
	})
	return &Components{
		Service:  svc,
		Pipeline: pipeline,
		Queue:    q,
		Storage:  store,
		closers:  append([]io.Closer{q}, closers...),
	}, nil
}

func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
