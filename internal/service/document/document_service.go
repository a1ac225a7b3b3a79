package document

import (
	"context"
	"mime/multipart"

	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/converters"
	"github.com/feichai0017/document-chunker/pkg/queue"
)

// DocumentProcessor is the asynchronous face of the chunking pipeline:
// uploads and locations are queued, workers call HandleDocument, and
// results are read back by task ID.
type DocumentProcessor interface {
	ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error)
	ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error)
	ProcessLocation(ctx context.Context, location, fileType string) (*models.ProcessingTask, error)
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	HandleDocument(ctx context.Context, task *queue.Task) error
	GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) error
}
