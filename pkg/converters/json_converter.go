package converters

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/feichai0017/document-chunker/internal/models"
)

// DocumentConverter turns chunks into a stored result document.
type DocumentConverter interface {
	Convert(chunks []models.Chunk) (*ProcessedDocument, error)
}

// ProcessedDocument is the JSON result saved for a finished task.
type ProcessedDocument struct {
	TaskID      string           `json:"taskId"`
	Status      string           `json:"status"`
	Content     []ChunkContent   `json:"content"`
	Metadata    DocumentMetadata `json:"metadata"`
	ProcessedAt time.Time        `json:"processedAt"`
}

type ChunkContent struct {
	Text       string               `json:"text"`
	Position   int                  `json:"position"`
	Characters int                  `json:"characters"`
	Metadata   models.ChunkMetadata `json:"metadata"`
}

type DocumentMetadata struct {
	FileName     string         `json:"fileName"`
	FileType     string         `json:"fileType"`
	FileSize     int64          `json:"fileSize"`
	ChunkCount   int            `json:"chunkCount"`
	Sections     []string       `json:"sections"`
	SplitMethods map[string]int `json:"splitMethods"`
	ProcessingMs int64          `json:"processingMs"`
}

type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

// Convert numbers chunks from 1 and collects section headers in first-seen
// order.
func (c *JSONConverter) Convert(chunks []models.Chunk) (*ProcessedDocument, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to convert")
	}

	doc := &ProcessedDocument{
		Status:      "completed",
		ProcessedAt: time.Now(),
		Content:     make([]ChunkContent, 0, len(chunks)),
		Metadata: DocumentMetadata{
			ChunkCount:   len(chunks),
			Sections:     make([]string, 0),
			SplitMethods: make(map[string]int),
		},
	}

	seen := make(map[string]bool)
	for i, chunk := range chunks {
		doc.Content = append(doc.Content, ChunkContent{
			Text:       chunk.Text,
			Position:   i + 1,
			Characters: utf8.RuneCountInString(chunk.Text),
			Metadata:   chunk.Metadata,
		})
		doc.Metadata.SplitMethods[chunk.Metadata.SplitMethod]++

		if h := chunk.Metadata.HeaderText; h != "" && !seen[h] {
			seen[h] = true
			doc.Metadata.Sections = append(doc.Metadata.Sections, h)
		}
	}
	return doc, nil
}
