package pdf

import (
	"context"
	"fmt"
	"image"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	ocr "github.com/feichai0017/document-chunker/internal/agent/document/image"
	"github.com/feichai0017/document-chunker/internal/agent/document/text"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

const (
	StageIntelligent = "intelligent_parse"
	StageBasic       = "basic_parse"
	StageOCR         = "ocr"
)

// Attempt is the per-document state shared by the stages of one Process
// call.
type Attempt struct {
	Data []byte
	// OCREnabled starts from configuration and is switched on when basic
	// parsing finds a scanned document.
	OCREnabled bool
	// ScannedText is the basic parse output that looked scanned.
	ScannedText string
}

// Result is the output of one stage.
type Result struct {
	Blocks []models.ContentBlock
	// Text is the plain text of Blocks, used for quality checks and for
	// ranking partial results.
	Text string
	// Gated is set when the stage already quality-gated its output, so the
	// scanned check does not apply.
	Gated bool
}

func newResult(blocks []models.ContentBlock, gated bool) Result {
	return Result{Blocks: blocks, Text: document.PlainText(blocks), Gated: gated}
}

// Stage is one extraction strategy.
type Stage interface {
	Name() string
	Run(ctx context.Context, a *Attempt) (Result, error)
}

// conditionalStage is a stage that may not apply to an attempt.
type conditionalStage interface {
	Enabled(a *Attempt) bool
}

// scannedHandler is told when its output looked scanned.
type scannedHandler interface {
	OnScanned(a *Attempt, r Result)
}

// IntelligentStage rebuilds layout from glyph positions: reading order,
// columns, tables and font size headers.
type IntelligentStage struct {
	readers []Reader
	builder *pageBuilder
	logger  logger.Logger
}

func (s *IntelligentStage) Name() string { return StageIntelligent }

func (s *IntelligentStage) Run(ctx context.Context, a *Attempt) (Result, error) {
	doc, readerName, err := openDocument(s.readers, a.Data)
	if err != nil {
		return Result{}, err
	}
	defer doc.Close()

	pages := make([]*models.PdfPage, 0, doc.NumPages())
	for i := 1; i <= doc.NumPages(); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		elements, w, h, err := doc.PageElements(i)
		if err != nil {
			return Result{}, fmt.Errorf("%s page %d: %w", readerName, i, err)
		}
		page := s.builder.layout.Extract(elements, w, h)
		page.PageNumber = i
		pages = append(pages, page)
	}

	margins := repeatedMargins(pages)
	var blocks []models.ContentBlock
	for _, page := range pages {
		blocks = append(blocks, s.builder.build(page, margins)...)
	}
	s.logger.Debug("Intelligent parse finished",
		logger.String("reader", readerName),
		logger.Int("pages", len(pages)),
		logger.Int("blocks", len(blocks)),
		logger.Int("runningHeaders", len(margins)),
	)
	return newResult(blocks, false), nil
}

// BasicStage splits native page text on blank lines.
type BasicStage struct {
	readers []Reader
	logger  logger.Logger
}

func (s *BasicStage) Name() string { return StageBasic }

func (s *BasicStage) Run(ctx context.Context, a *Attempt) (Result, error) {
	doc, readerName, err := openDocument(s.readers, a.Data)
	if err != nil {
		return Result{}, err
	}
	defer doc.Close()

	var blocks []models.ContentBlock
	for i := 1; i <= doc.NumPages(); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		pageText, err := doc.PageText(i)
		if err != nil {
			s.logger.Warn("Failed to read page text",
				logger.String("reader", readerName),
				logger.Int("page", i),
				logger.Error(err),
			)
			continue
		}
		blocks = append(blocks, text.Structure(pageText, i, models.ConfidenceHeuristic)...)
	}
	return newResult(blocks, false), nil
}

// OnScanned switches OCR on, overriding configuration.
func (s *BasicStage) OnScanned(a *Attempt, r Result) {
	if !a.OCREnabled {
		s.logger.Warn("Basic parse looks scanned, enabling OCR despite configuration",
			logger.Int("characters", len(r.Text)),
		)
	}
	a.OCREnabled = true
	a.ScannedText = r.Text
}

// OCRStage rasterizes pages and runs them through the OCR pipeline.
type OCRStage struct {
	rasterizer Rasterizer
	pipeline   *ocr.Pipeline
	logger     logger.Logger
}

func (s *OCRStage) Name() string { return StageOCR }

func (s *OCRStage) Enabled(a *Attempt) bool {
	return a.OCREnabled
}

func (s *OCRStage) Run(ctx context.Context, a *Attempt) (Result, error) {
	if s.rasterizer == nil || s.pipeline == nil {
		return Result{}, fmt.Errorf("%w: no rasterizer or ocr engine configured", document.ErrCollaboratorUnavailable)
	}
	cfg := s.pipeline.Config()

	var pages []ocr.PageResult
	rejected := 0
	err := s.rasterizer.RenderPages(ctx, a.Data, cfg.MaxPages, cfg.DPI, func(page int, img image.Image) error {
		res, err := s.pipeline.RecognizePage(ctx, page, img, cfg.DPI)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("OCR failed for page",
				logger.Int("page", page),
				logger.Error(err),
			)
			return nil
		}
		if res.Rejected {
			rejected++
		}
		pages = append(pages, res)
		return nil
	})
	if err != nil && len(pages) == 0 {
		return Result{}, err
	}
	if err != nil {
		s.logger.Warn("Rendering stopped early, keeping recognized pages",
			logger.Int("pages", len(pages)),
			logger.Error(err),
		)
	}
	if rejected > 0 {
		s.logger.Info("OCR pages rejected by quality gate",
			logger.Int("rejected", rejected),
			logger.Int("pages", len(pages)),
		)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return newResult(ocr.Blocks(pages), true), nil
}
