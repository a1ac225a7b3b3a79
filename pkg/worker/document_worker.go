package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-chunker/internal/service/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/queue"
)

// TaskHandler is the part of the document service a worker needs.
type TaskHandler interface {
	HandleDocument(ctx context.Context, task *queue.Task) error
}

type DocumentWorker struct {
	BaseWorker
	docService TaskHandler
}

func NewDocumentWorker(cfg *Config, docService TaskHandler, log logger.Logger) (*DocumentWorker, error) {
	if log == nil {
		log = logger.NewNop()
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log.Named("worker"),
		},
		docService: docService,
	}
	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeDocumentChunk, w.handleDocumentChunk)
}

// handleDocumentChunk decodes a queued task and runs it. Failures that a
// retry cannot fix skip asynq's retries.
func (w *DocumentWorker) handleDocumentChunk(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("Processing document task",
		logger.String("taskId", task.ID),
		logger.String("filename", task.Payload.Filename),
		logger.Int64("size", task.Payload.Size),
	)

	if task.ID == "" || (task.Payload.FileKey == "" && task.Payload.Location == "") {
		w.logger.Error("Invalid task data", logger.String("taskId", task.ID))
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	rw := t.ResultWriter()
	w.writeResult(rw, `{"status":"running","progress":0}`)

	if err := w.docService.HandleDocument(ctx, &task); err != nil {
		w.writeResult(rw, fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))
		if !document.Retryable(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.writeResult(rw, `{"status":"completed","progress":100}`)
	return nil
}

func (w *DocumentWorker) writeResult(rw *asynq.ResultWriter, s string) {
	if rw == nil {
		return
	}
	if _, err := rw.Write([]byte(s)); err != nil {
		w.logger.Error("Failed to write task result", logger.Error(err))
	}
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = w.Stop()
	}()
	return nil
}
