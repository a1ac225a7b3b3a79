package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentdoc "github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/queue"
)

type fakeHandler struct {
	got []*queue.Task
	err error
}

func (f *fakeHandler) HandleDocument(ctx context.Context, task *queue.Task) error {
	f.got = append(f.got, task)
	return f.err
}

func newTestWorker(h TaskHandler) *DocumentWorker {
	return &DocumentWorker{
		BaseWorker: BaseWorker{mux: asynq.NewServeMux(), logger: logger.NewNop()},
		docService: h,
	}
}

func asynqTask(t *testing.T, task queue.Task) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(task)
	require.NoError(t, err)
	return asynq.NewTask(queue.TaskTypeDocumentChunk, data)
}

func TestHandleDocumentChunk(t *testing.T) {
	h := &fakeHandler{}
	w := newTestWorker(h)

	task := queue.Task{ID: "t1", Payload: queue.Payload{FileKey: "uploads/t1/a.md", Filename: "a.md"}}
	require.NoError(t, w.handleDocumentChunk(context.Background(), asynqTask(t, task)))
	require.Len(t, h.got, 1)
	assert.Equal(t, "uploads/t1/a.md", h.got[0].Payload.FileKey)
}

func TestHandleDocumentChunk_SkipRetry(t *testing.T) {
	ctx := context.Background()

	w := newTestWorker(&fakeHandler{})
	err := w.handleDocumentChunk(ctx, asynq.NewTask(queue.TaskTypeDocumentChunk, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.handleDocumentChunk(ctx, asynqTask(t, queue.Task{ID: "t2"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	w = newTestWorker(&fakeHandler{err: fmt.Errorf("pdf: %w", agentdoc.ErrNoContent)})
	err = w.handleDocumentChunk(ctx, asynqTask(t, queue.Task{ID: "t3", Payload: queue.Payload{Location: "/tmp/x.pdf"}}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, agentdoc.ErrNoContent)
}

func TestHandleDocumentChunk_Retryable(t *testing.T) {
	w := newTestWorker(&fakeHandler{err: errors.New("storage timeout")})
	err := w.handleDocumentChunk(context.Background(), asynqTask(t, queue.Task{ID: "t4", Payload: queue.Payload{FileKey: "k"}}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestRegisterHandlers(t *testing.T) {
	h := &fakeHandler{}
	w := newTestWorker(h)
	w.registerHandlers()

	task := queue.Task{ID: "t5", Payload: queue.Payload{Location: "https://example.com/a.pdf"}}
	require.NoError(t, w.mux.ProcessTask(context.Background(), asynqTask(t, task)))
	assert.Len(t, h.got, 1)
}
