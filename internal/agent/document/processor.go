package document

import (
	"context"
	"io"

	"github.com/feichai0017/document-chunker/internal/models"
)

// Processor converts one document format into content blocks.
type Processor interface {
	// CanProcess reports whether the processor handles the MIME type.
	CanProcess(mimeType string) bool

	// Process reads the whole document and returns its blocks in reading order.
	Process(ctx context.Context, reader io.Reader) ([]models.ContentBlock, error)

	// ExtractMetadata returns format level metadata such as page count.
	ExtractMetadata(ctx context.Context, reader io.Reader) (models.DocumentMetadata, error)

	// Close releases resources held by the processor.
	Close() error
}
