package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-chunker/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopOnce sync.Once
}

// Stop drains in-flight tasks and shuts the server down. It is safe to
// call more than once.
func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		w.server.Shutdown()
	})
	return nil
}
