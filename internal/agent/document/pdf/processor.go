// Package pdf extracts content blocks from PDF files through an ordered list
// of stages: layout-aware parsing, basic text parsing and OCR.
package pdf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	ocr "github.com/feichai0017/document-chunker/internal/agent/document/image"
	"github.com/feichai0017/document-chunker/internal/agent/document/layout"
	"github.com/feichai0017/document-chunker/internal/agent/document/quality"
	"github.com/feichai0017/document-chunker/internal/agent/document/table"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/metrics"
)

var tracer = otel.Tracer("github.com/feichai0017/document-chunker/pdf")

type Options struct {
	// Readers are tried in order to open a file. Defaults to ledongthuc
	// with pdfcpu as fallback.
	Readers    []Reader
	Rasterizer Rasterizer
	OCR        *ocr.Pipeline
	Gate       *quality.Gate
	Layout     layout.Config
	Table      table.Config
	// EnableOCR turns the OCR stage on up front. It is also switched on
	// when basic parsing finds a scanned document.
	EnableOCR bool
}

type Processor struct {
	logger    logger.Logger
	stages    []Stage
	readers   []Reader
	gate      *quality.Gate
	enableOCR bool
}

func NewProcessor(opts Options, log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("pdf")

	readers := opts.Readers
	if len(readers) == 0 {
		readers = []Reader{NewLedongReader(), NewPdfcpuReader()}
	}
	gate := opts.Gate
	if gate == nil {
		gate = quality.NewGate(quality.DefaultThresholds(), log)
	}
	tableCfg := opts.Table
	if tableCfg == (table.Config{}) {
		tableCfg = table.DefaultConfig()
	}

	builder := &pageBuilder{
		layout: layout.NewExtractor(opts.Layout),
		tables: table.NewExtractor(tableCfg, log),
	}
	stages := []Stage{
		&IntelligentStage{readers: readers, builder: builder, logger: log.Named(StageIntelligent)},
		&BasicStage{readers: readers, logger: log.Named(StageBasic)},
		&OCRStage{rasterizer: opts.Rasterizer, pipeline: opts.OCR, logger: log.Named(StageOCR)},
	}
	return NewProcessorWithStages(stages, readers, gate, opts.EnableOCR, log)
}

// NewProcessorWithStages builds a processor over a custom stage list.
func NewProcessorWithStages(stages []Stage, readers []Reader, gate *quality.Gate, enableOCR bool, log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	if gate == nil {
		gate = quality.NewGate(quality.DefaultThresholds(), log)
	}
	return &Processor{
		logger:    log,
		stages:    stages,
		readers:   readers,
		gate:      gate,
		enableOCR: enableOCR,
	}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == "application/pdf"
}

// Process runs the stages in order and returns the first result that is
// non-empty and does not look scanned. When no stage is accepted the
// longest partial result is returned; document.ErrNoContent only when every
// stage came back empty.
func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.ContentBlock, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	attempt := &Attempt{Data: content, OCREnabled: p.enableOCR}
	var best Result
	bestStage := ""

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c, ok := stage.(conditionalStage); ok && !c.Enabled(attempt) {
			metrics.RecordStage(stage.Name(), metrics.OutcomeSkipped, 0)
			p.logger.Debug("Stage skipped", logger.String("stage", stage.Name()))
			continue
		}

		res, outcome, err := p.runStage(ctx, stage, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("Stage failed, falling back",
				logger.String("stage", stage.Name()),
				logger.Error(err),
			)
			continue
		}

		if outcome == metrics.OutcomeAccepted {
			p.logger.Info("Stage accepted",
				logger.String("stage", stage.Name()),
				logger.Int("blocks", len(res.Blocks)),
			)
			return res.Blocks, nil
		}
		if outcome == metrics.OutcomeScanned {
			if h, ok := stage.(scannedHandler); ok {
				h.OnScanned(attempt, res)
			}
		}
		if len(res.Text) > len(best.Text) {
			best, bestStage = res, stage.Name()
		}
	}

	if len(best.Blocks) == 0 {
		return nil, document.ErrNoContent
	}
	p.logger.Warn("No stage accepted, returning best partial result",
		logger.String("stage", bestStage),
		logger.Int("characters", len(best.Text)),
	)
	return best.Blocks, nil
}

// runStage runs one stage under a span, converting panics into
// document.ErrTransientExtraction, and classifies the outcome.
func (p *Processor) runStage(ctx context.Context, stage Stage, a *Attempt) (res Result, outcome string, err error) {
	ctx, span := tracer.Start(ctx, "pdf."+stage.Name())
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Stage panicked",
				logger.String("stage", stage.Name()),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			res, outcome, err = Result{}, metrics.OutcomeFailed, fmt.Errorf("%w: %s panicked: %v", document.ErrTransientExtraction, stage.Name(), r)
		}
		if err != nil {
			outcome = metrics.OutcomeFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
		metrics.RecordStage(stage.Name(), outcome, time.Since(start))
	}()

	res, err = stage.Run(ctx, a)
	if err != nil {
		return Result{}, metrics.OutcomeFailed, fmt.Errorf("%w: %s: %w", document.ErrTransientExtraction, stage.Name(), err)
	}
	switch {
	case len(res.Blocks) == 0 || res.Text == "":
		return res, metrics.OutcomeEmpty, nil
	case !res.Gated && p.gate.IsScanned(res.Text):
		p.logger.Info("Stage output looks scanned",
			logger.String("stage", stage.Name()),
			logger.Int("characters", len(res.Text)),
		)
		return res, metrics.OutcomeScanned, nil
	default:
		return res, metrics.OutcomeAccepted, nil
	}
}

func (p *Processor) ExtractMetadata(ctx context.Context, file io.Reader) (meta models.DocumentMetadata, err error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return models.DocumentMetadata{}, fmt.Errorf("failed to read pdf: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf metadata: %v", document.ErrTransientExtraction, r)
		}
	}()

	doc, readerName, err := openDocument(p.readers, content)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	defer doc.Close()

	hash := sha256.Sum256(content)
	hashString := hex.EncodeToString(hash[:])
	info := doc.Info()

	return models.DocumentMetadata{
		ID:        hashString[:8],
		Title:     info.Title,
		Author:    info.Author,
		FileType:  models.PDF,
		FileSize:  int64(len(content)),
		MimeType:  "application/pdf",
		Pages:     doc.NumPages(),
		CreatedAt: time.Now(),
		Hash:      hashString,
		Extra: map[string]interface{}{
			"reader": readerName,
		},
	}, nil
}

func (p *Processor) Close() error {
	return nil
}
