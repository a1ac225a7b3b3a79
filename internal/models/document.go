package models

import (
	"time"
)

// FileType is the normalized format a document is routed by.
type FileType string

const (
	PDF      FileType = "pdf"
	Image    FileType = "image"
	Word     FileType = "docx"
	Slides   FileType = "pptx"
	Sheet    FileType = "xlsx"
	Text     FileType = "text"
	Markdown FileType = "markdown"
	HTML     FileType = "html"
)

// DocumentMetadata describes a document independent of its chunks.
type DocumentMetadata struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	Author     string                 `json:"author"`
	FileType   FileType               `json:"fileType"`
	FileSize   int64                  `json:"fileSize"`
	MimeType   string                 `json:"mimeType"`
	Pages      int                    `json:"pages"`
	CreatedAt  time.Time              `json:"createdAt"`
	Hash       string                 `json:"hash"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
	Properties map[string]interface{} `json:"properties"`
}

// ProcessingTask tracks one queued extract-and-chunk job.
type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)
