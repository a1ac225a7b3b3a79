// Package queue enqueues chunking jobs on asynq and keeps their status in
// Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const TaskTypeDocumentChunk = "document:chunk"

// Queue names by priority.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Task status values.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var queues = []string{QueueCritical, QueueDefault, QueueLow}

// ErrTaskNotFound is returned when neither Redis nor any queue knows a task.
var ErrTaskNotFound = errors.New("task not found")

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveFinalStatus(ctx context.Context, status *TaskStatus) error
}

// Payload locates the document a worker should chunk.
type Payload struct {
	// FileKey is the storage key of an uploaded document.
	FileKey string `json:"fileKey,omitempty"`
	// Location is fetched instead when FileKey is empty.
	Location string `json:"location,omitempty"`
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
}

type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   Payload           `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	Chunks     int       `json:"chunks,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

// AsynqQueue enqueues with asynq and stores status snapshots in Redis.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       QueueConfig
}

func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 30 * time.Minute
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redisClient,
		cfg:       *cfg,
	}, nil
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	t := asynq.NewTask(task.Type, payload,
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.TaskID(task.ID),
		asynq.Queue(QueueFor(task.Priority)),
		asynq.Retention(q.cfg.StatusTTL),
	)
	info, err := q.client.EnqueueContext(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID
	return nil
}

// QueueFor maps a priority to a queue name: 1 critical, 2 default, else low.
func QueueFor(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

// GetTaskStatus prefers the snapshot saved in Redis and falls back to the
// asynq inspector.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	for _, name := range queues {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask deletes a task that has not started and records it as
// cancelled.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	var lastErr error
	for _, name := range queues {
		err := q.inspector.DeleteTask(name, taskID)
		if err == nil {
			return q.SaveFinalStatus(ctx, &TaskStatus{
				TaskID:     taskID,
				Status:     StatusCancelled,
				FinishedAt: time.Now(),
			})
		}
		lastErr = err
	}
	return fmt.Errorf("failed to cancel task: %w", lastErr)
}

func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func statusKey(taskID string) string {
	return "task_status:" + taskID
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		Status:    StatusPending,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStateActive:
		status.Status = StatusRunning
		status.Progress = 0.5
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	}
	return status
}
