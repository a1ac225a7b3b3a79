package pdf

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

// Rasterizer renders PDF pages to images. fn receives pages in order,
// numbered from 1, and may stop the walk by returning an error. A rendered
// page is not retained after fn returns.
type Rasterizer interface {
	RenderPages(ctx context.Context, data []byte, maxPages, dpi int, fn func(page int, img image.Image) error) error
}

// FitzRasterizer renders pages with MuPDF through go-fitz.
type FitzRasterizer struct {
	logger logger.Logger
}

func NewFitzRasterizer(log logger.Logger) *FitzRasterizer {
	if log == nil {
		log = logger.NewNop()
	}
	return &FitzRasterizer{logger: log.Named("rasterizer")}
}

func (r *FitzRasterizer) RenderPages(ctx context.Context, data []byte, maxPages, dpi int, fn func(page int, img image.Image) error) error {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return fmt.Errorf("%w: failed to open document for rendering: %v", document.ErrCollaboratorUnavailable, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	n := total
	if maxPages > 0 && n > maxPages {
		n = maxPages
		r.logger.Warn("Page cap reached, remaining pages are not rendered",
			logger.Int("pages", total),
			logger.Int("maxPages", maxPages),
		)
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		if err := fn(i+1, img); err != nil {
			return err
		}
	}
	return nil
}
