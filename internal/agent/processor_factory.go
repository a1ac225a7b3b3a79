package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/agent/document/docx"
	"github.com/feichai0017/document-chunker/internal/agent/document/image"
	"github.com/feichai0017/document-chunker/internal/agent/document/layout"
	"github.com/feichai0017/document-chunker/internal/agent/document/pdf"
	"github.com/feichai0017/document-chunker/internal/agent/document/pptx"
	"github.com/feichai0017/document-chunker/internal/agent/document/quality"
	"github.com/feichai0017/document-chunker/internal/agent/document/table"
	"github.com/feichai0017/document-chunker/internal/agent/document/text"
	"github.com/feichai0017/document-chunker/internal/agent/document/xlsx"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

const mimePDF = "application/pdf"

// extToMIME maps file extensions to the MIME type processors register under.
var extToMIME = map[string]string{
	".pdf":      mimePDF,
	".docx":     docx.MimeType,
	".pptx":     pptx.MimeType,
	".xlsx":     xlsx.MimeType,
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".png":      "image/png",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
	".bmp":      "image/bmp",
	".gif":      "image/gif",
	".webp":     "image/webp",
	".txt":      text.MimePlain,
	".text":     text.MimePlain,
	".md":       text.MimeMarkdown,
	".markdown": text.MimeMarkdown,
	".html":     text.MimeHTML,
	".htm":      text.MimeHTML,
}

var imageMIMEs = []string{"image/jpeg", "image/jpg", "image/png", "image/tiff", "image/bmp", "image/gif", "image/webp"}

// Engines accepted by FactoryConfig.OCREngine.
const (
	EngineTesseract = "tesseract"
	EngineTextract  = "textract"
	EngineNone      = "none"
)

// FactoryConfig selects the collaborators of the default processors.
type FactoryConfig struct {
	OCR       image.OCRConfig
	OCREngine string
	// EnableOCR runs the PDF OCR stage up front instead of only after a
	// scanned document is detected.
	EnableOCR bool
	Tesseract image.TesseractConfig
	Textract  *image.TextractConfig
	Quality   quality.Thresholds
	Layout    layout.Config
	Table     table.Config
	Sheets    xlsx.Limits
}

// ProcessorFactory routes a file type or MIME type to its processor.
type ProcessorFactory struct {
	processors map[string]document.Processor
	logger     logger.Logger
}

// NewProcessorFactory returns an empty factory; see Register.
func NewProcessorFactory(log logger.Logger) *ProcessorFactory {
	if log == nil {
		log = logger.NewNop()
	}
	return &ProcessorFactory{
		processors: make(map[string]document.Processor),
		logger:     log.Named("factory"),
	}
}

// NewDefaultFactory registers a processor for every supported format. With
// OCREngine "none" images are unsupported and scanned PDFs keep their best
// native text.
func NewDefaultFactory(ctx context.Context, cfg FactoryConfig, log logger.Logger) (*ProcessorFactory, error) {
	f := NewProcessorFactory(log)
	if cfg.Quality == (quality.Thresholds{}) {
		cfg.Quality = quality.DefaultThresholds()
	}
	gate := quality.NewGate(cfg.Quality, f.logger)

	var ocr *image.Pipeline
	engine, err := newEngine(ctx, cfg, f.logger)
	if err != nil {
		return nil, err
	}
	if engine != nil {
		ocr = image.NewPipeline(engine, gate, cfg.OCR, f.logger)
		imageProcessor, err := image.NewProcessor(ocr, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create image processor: %w", err)
		}
		f.Register(imageProcessor, imageMIMEs...)
	}

	f.Register(pdf.NewProcessor(pdf.Options{
		Rasterizer: pdf.NewFitzRasterizer(f.logger),
		OCR:        ocr,
		Gate:       gate,
		Layout:     cfg.Layout,
		Table:      cfg.Table,
		EnableOCR:  cfg.EnableOCR,
	}, f.logger), mimePDF)
	f.Register(docx.NewProcessor(f.logger), docx.MimeType)
	f.Register(pptx.NewProcessor(f.logger), pptx.MimeType)
	f.Register(xlsx.NewProcessor(cfg.Sheets, f.logger), xlsx.MimeType)
	for _, m := range []string{text.MimePlain, text.MimeMarkdown, text.MimeHTML} {
		f.Register(text.NewProcessor(m, f.logger), m)
	}

	f.logger.Info("Processor factory ready",
		logger.String("ocrEngine", engineName(engine)),
		logger.Int("mimeTypes", len(f.processors)),
	)
	return f, nil
}

func newEngine(ctx context.Context, cfg FactoryConfig, log logger.Logger) (image.Engine, error) {
	switch strings.ToLower(cfg.OCREngine) {
	case "", EngineTesseract:
		return image.NewTesseractEngine(cfg.Tesseract, log), nil
	case EngineTextract:
		if cfg.Textract == nil {
			return nil, fmt.Errorf("%w: textract engine selected without configuration", document.ErrCollaboratorUnavailable)
		}
		engine, err := image.NewTextractEngine(ctx, cfg.Textract, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract engine: %w", err)
		}
		return engine, nil
	case EngineNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown ocr engine %q", document.ErrCollaboratorUnavailable, cfg.OCREngine)
	}
}

func engineName(e image.Engine) string {
	if e == nil {
		return EngineNone
	}
	return e.Name()
}

// Register binds p to each MIME type, replacing earlier registrations.
func (f *ProcessorFactory) Register(p document.Processor, mimeTypes ...string) {
	for _, m := range mimeTypes {
		f.processors[m] = p
	}
}

// GetProcessor resolves an extension ("pdf", ".pdf") or MIME type.
func (f *ProcessorFactory) GetProcessor(fileType string) (document.Processor, error) {
	_, p, err := f.Resolve(fileType, nil)
	return p, err
}

// Resolve finds the processor for fileType. When fileType is empty or
// unknown and data is given, the content is sniffed and the detected MIME
// type and its parents are tried in turn.
func (f *ProcessorFactory) Resolve(fileType string, data []byte) (string, document.Processor, error) {
	mimeType := normalizeType(fileType)
	if p, ok := f.processors[mimeType]; ok {
		return mimeType, p, nil
	}

	if len(data) > 0 {
		for m := mimetype.Detect(data); m != nil; m = m.Parent() {
			detected := baseMIME(m.String())
			if p, ok := f.processors[detected]; ok {
				f.logger.Debug("Resolved processor by content",
					logger.String("fileType", fileType),
					logger.String("mimeType", detected),
				)
				return detected, p, nil
			}
		}
	}

	f.logger.Warn("Unsupported file type",
		logger.String("fileType", fileType),
		logger.String("mimeType", mimeType),
	)
	return "", nil, fmt.Errorf("%w: %s", document.ErrUnsupportedFormat, fileType)
}

// Close releases every registered processor once.
func (f *ProcessorFactory) Close() error {
	seen := make(map[document.Processor]bool)
	var errs []error
	for _, p := range f.processors {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalizeType(fileType string) string {
	t := strings.ToLower(strings.TrimSpace(fileType))
	if strings.Contains(t, "/") {
		return baseMIME(t)
	}
	if t != "" && !strings.HasPrefix(t, ".") {
		t = "." + t
	}
	return extToMIME[t]
}

func baseMIME(m string) string {
	m, _, _ = strings.Cut(m, ";")
	return strings.ToLower(strings.TrimSpace(m))
}

// FileTypeOf maps a resolved MIME type to the format label used in metrics
// and routing.
func FileTypeOf(mimeType string) models.FileType {
	switch {
	case mimeType == mimePDF:
		return models.PDF
	case mimeType == docx.MimeType:
		return models.Word
	case mimeType == pptx.MimeType:
		return models.Slides
	case mimeType == xlsx.MimeType:
		return models.Sheet
	case mimeType == text.MimeMarkdown:
		return models.Markdown
	case mimeType == text.MimeHTML:
		return models.HTML
	case strings.HasPrefix(mimeType, "image/"):
		return models.Image
	default:
		return models.Text
	}
}
