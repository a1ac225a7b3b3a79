package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-chunker/internal/agent"
	agentdoc "github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/internal/utils/validator"
	"github.com/feichai0017/document-chunker/pkg/converters"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/queue"
	"github.com/feichai0017/document-chunker/pkg/storage"
)

var (
	// ErrInvalidFile wraps every upload rejected by validation.
	ErrInvalidFile = errors.New("invalid file")
	// ErrNotCompleted is returned for results of unfinished tasks.
	ErrNotCompleted = errors.New("task is not completed")
	// ErrInvalidTask marks queue payloads that can never be processed.
	ErrInvalidTask = errors.New("invalid task")
)

var _ DocumentProcessor = (*DocumentService)(nil)

type DocumentService struct {
	pipeline  *agent.Pipeline
	queue     queue.Queue
	storage   storage.Storage
	validator *validator.DocumentValidator
	converter converters.DocumentConverter
	logger    logger.Logger
	config    *ServiceConfig
}

type ServiceConfig struct {
	MaxFileSize     int64
	QueuePriority   int
	MaxConcurrent   int
	RetentionPeriod time.Duration
	// Options bound each HandleDocument run.
	Options agent.Options
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxFileSize:     50 << 20,
		QueuePriority:   2,
		MaxConcurrent:   5,
		RetentionPeriod: 24 * time.Hour,
	}
}

func NewService(
	pipeline *agent.Pipeline,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	vcfg := validator.DefaultConfig()
	if cfg.MaxFileSize > 0 {
		vcfg.MaxFileSize = cfg.MaxFileSize
	}
	return &DocumentService{
		pipeline:  pipeline,
		queue:     q,
		storage:   store,
		validator: validator.NewDocumentValidator(log, vcfg),
		converter: converters.NewJSONConverter(),
		logger:    log.Named("document"),
		config:    cfg,
	}
}

// Retryable reports whether a HandleDocument failure may succeed on retry.
func Retryable(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrInvalidTask) &&
		!errors.Is(err, agentdoc.ErrUnsupportedFormat) &&
		!errors.Is(err, agentdoc.ErrNoContent)
}

// ProcessFile validates and stores an upload, then queues it for chunking.
func (s *DocumentService) ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error) {
	s.logger.Info("Starting file processing",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)

	data, err := io.ReadAll(io.LimitReader(file, s.validator.MaxFileSize()+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	size := max(header.Size, int64(len(data)))
	result := s.validator.Validate(header.Filename, size, data)
	if !result.IsValid {
		s.logger.Warn("File validation failed",
			logger.String("filename", header.Filename),
			logger.Any("errors", result.Errors),
		)
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, result.Errors[0].Message)
	}

	taskID := uuid.New().String()
	key, err := s.storage.Store(ctx, bytes.NewReader(data), uploadKey(taskID, header.Filename))
	if err != nil {
		s.logger.Error("Failed to store file",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return s.enqueue(ctx, taskID, queue.Payload{
		FileKey:  key,
		Filename: header.Filename,
		FileType: result.FileInfo.Extension,
		Size:     size,
	}, map[string]string{"hash": result.FileInfo.Hash, "mimeType": result.FileInfo.MimeType})
}

// ProcessLocation queues a document the worker fetches itself: a local
// path, an http(s) URL or an object store URL.
func (s *DocumentService) ProcessLocation(ctx context.Context, location, fileType string) (*models.ProcessingTask, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", ErrInvalidFile)
	}
	name := path.Base(location)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return s.enqueue(ctx, uuid.New().String(), queue.Payload{
		Location: location,
		Filename: name,
		FileType: fileType,
	}, nil)
}

func (s *DocumentService) enqueue(ctx context.Context, taskID string, payload queue.Payload, extra map[string]string) (*models.ProcessingTask, error) {
	now := time.Now()
	metadata := map[string]string{
		"filename": payload.Filename,
		"size":     strconv.FormatInt(payload.Size, 10),
		"type":     payload.FileType,
	}
	for k, v := range extra {
		metadata[k] = v
	}

	qt := &queue.Task{
		ID:        taskID,
		Type:      queue.TaskTypeDocumentChunk,
		Priority:  s.config.QueuePriority,
		Payload:   payload,
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := s.queue.Enqueue(ctx, qt); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := s.queue.SaveFinalStatus(ctx, &queue.TaskStatus{
		TaskID:    qt.ID,
		Status:    queue.StatusPending,
		StartedAt: now,
	}); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("taskId", qt.ID),
			logger.Error(err),
		)
	}

	s.logger.Info("Chunking task created",
		logger.String("taskId", qt.ID),
		logger.String("filename", payload.Filename),
	)
	return &models.ProcessingTask{
		ID:        qt.ID,
		Status:    models.StatusPending,
		Type:      qt.Type,
		Priority:  qt.Priority,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ProcessBatch queues files concurrently, at most MaxConcurrent at a time.
// The returned tasks follow the order of files; on error the tasks created
// so far are returned with it.
func (s *DocumentService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrent > 0 {
		g.SetLimit(s.config.MaxConcurrent)
	}
	for i, header := range files {
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			task, err := s.ProcessFile(gctx, file, header)
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}
			tasks[i] = task
			return nil
		})
	}
	err := g.Wait()

	out := make([]*models.ProcessingTask, 0, len(tasks))
	for _, t := range tasks {
		if t != nil {
			out = append(out, t)
		}
	}
	return out, err
}

// HandleDocument runs the pipeline for one queued task and stores the
// converted result.
func (s *DocumentService) HandleDocument(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" || (task.Payload.FileKey == "" && task.Payload.Location == "") {
		return fmt.Errorf("%w: missing id or source", ErrInvalidTask)
	}
	ctx = logger.WithTaskID(ctx, task.ID)
	ctx = logger.WithDocument(ctx, task.Payload.Filename)
	log := logger.FromContext(ctx, s.logger)

	if st, err := s.queue.GetTaskStatus(ctx, task.ID); err == nil && st.Status == queue.StatusCancelled {
		log.Info("Skipping cancelled task")
		return nil
	}

	started := time.Now()
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    queue.StatusRunning,
		Progress:  0.1,
		StartedAt: started,
	})

	chunks, err := s.chunk(ctx, task)
	if err == nil {
		err = s.storeResult(ctx, task, chunks, time.Since(started))
	}
	if err != nil {
		log.Error("Document processing failed", logger.Error(err), logger.Bool("retryable", Retryable(err)))
		s.saveStatus(ctx, &queue.TaskStatus{
			TaskID:     task.ID,
			Status:     queue.StatusFailed,
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		})
		return err
	}

	log.Info("Document processing completed", logger.Int("chunkCount", len(chunks)))
	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     queue.StatusCompleted,
		Progress:   1.0,
		Chunks:     len(chunks),
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
	return nil
}

func (s *DocumentService) chunk(ctx context.Context, task *queue.Task) ([]models.Chunk, error) {
	p := task.Payload
	src := agent.Source{Name: p.Filename, Location: p.Location}
	if p.FileKey != "" {
		reader, err := s.storage.Get(ctx, p.FileKey)
		if err != nil {
			return nil, fmt.Errorf("failed to get file: %w", err)
		}
		defer reader.Close()
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		src = agent.FromBytes(p.Filename, data)
	}
	return s.pipeline.ExtractAndChunk(ctx, p.FileType, src, s.config.Options)
}

func (s *DocumentService) storeResult(ctx context.Context, task *queue.Task, chunks []models.Chunk, took time.Duration) error {
	doc, err := s.converter.Convert(chunks)
	if err != nil {
		return fmt.Errorf("failed to convert document: %w", err)
	}
	doc.TaskID = task.ID
	doc.Metadata.FileName = task.Payload.Filename
	doc.Metadata.FileType = strings.TrimPrefix(task.Payload.FileType, ".")
	if doc.Metadata.FileType == "" {
		doc.Metadata.FileType = strings.TrimPrefix(filepath.Ext(task.Payload.Filename), ".")
	}
	doc.Metadata.FileSize = task.Payload.Size
	doc.Metadata.ProcessingMs = took.Milliseconds()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), resultKey(task.ID)); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

func (s *DocumentService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveFinalStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	var taskStatus models.ProcessingStatus
	switch status.Status {
	case queue.StatusRunning, "active":
		taskStatus = models.StatusRunning
	case queue.StatusCompleted:
		taskStatus = models.StatusCompleted
	case queue.StatusFailed:
		taskStatus = models.StatusFailed
	case queue.StatusCancelled:
		taskStatus = models.StatusCancelled
	default:
		taskStatus = models.StatusPending
	}

	metadata := make(map[string]string)
	if status.Chunks > 0 {
		metadata["chunks"] = strconv.Itoa(status.Chunks)
	}
	return &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    taskStatus,
		Type:      queue.TaskTypeDocumentChunk,
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  metadata,
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}, nil
}

func (s *DocumentService) GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrNotCompleted, status.Status)
	}

	reader, err := s.storage.Get(ctx, resultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	var result converters.ProcessedDocument
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks removes uploads and results older than the retention period.
func (s *DocumentService) CleanupTasks(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("Completed tasks cleanup", logger.Time("threshold", threshold))
	return nil
}

func uploadKey(taskID, filename string) string {
	return "uploads/" + taskID + "/" + filepath.Base(filename)
}

func resultKey(taskID string) string {
	return "results/" + taskID + ".json"
}
