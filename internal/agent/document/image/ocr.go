package image

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/feichai0017/document-chunker/internal/agent/document/quality"
	"github.com/feichai0017/document-chunker/internal/agent/document/text"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/metrics"
)

var tracer = otel.Tracer("github.com/feichai0017/document-chunker/ocr")

// MaxOCRPages is the hard cap on pages rasterized per document.
const MaxOCRPages = 20

type OCRConfig struct {
	Language string   `yaml:"language"`
	Mode     PageMode `yaml:"mode"`
	// MaxPages caps how many pages of one document are rasterized. Values
	// above MaxOCRPages are lowered to it.
	MaxPages int `yaml:"maxPages"`
	// DPI is the rasterization resolution for PDF pages.
	DPI               int              `yaml:"dpi"`
	DetectOrientation bool             `yaml:"detectOrientation"`
	PageTimeout       time.Duration    `yaml:"pageTimeout"`
	Preprocess        PreprocessConfig `yaml:"preprocess"`
}

func DefaultOCRConfig() OCRConfig {
	return OCRConfig{
		Language:          "eng",
		Mode:              ModeAuto,
		MaxPages:          MaxOCRPages,
		DPI:               300,
		DetectOrientation: true,
		PageTimeout:       60 * time.Second,
		Preprocess:        DefaultPreprocessConfig(),
	}
}

// PageResult is the OCR outcome for one page.
type PageResult struct {
	PageNumber   int
	Text         string
	Confidence   float64
	Rotation     int
	Preprocessed bool
	// Rejected is set when the garbage gate discarded the page text.
	Rejected bool
	Tables   []*models.TableMatrix
}

// Pipeline runs one page image through orientation correction, conditional
// preprocessing, recognition, artifact cleanup and the garbage gate.
type Pipeline struct {
	engine Engine
	gate   *quality.Gate
	cfg    OCRConfig
	chain  []ImagePreprocessor
	logger logger.Logger
}

func NewPipeline(engine Engine, gate *quality.Gate, cfg OCRConfig, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	if gate == nil {
		gate = quality.NewGate(quality.DefaultThresholds(), log)
	}
	if cfg.MaxPages <= 0 || cfg.MaxPages > MaxOCRPages {
		cfg.MaxPages = MaxOCRPages
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Preprocess == (PreprocessConfig{}) {
		cfg.Preprocess = DefaultPreprocessConfig()
	}
	return &Pipeline{
		engine: engine,
		gate:   gate,
		cfg:    cfg,
		chain:  cfg.Preprocess.Chain(),
		logger: log.Named("ocr"),
	}
}

func (p *Pipeline) Config() OCRConfig {
	return p.cfg
}

func (p *Pipeline) EngineName() string {
	return p.engine.Name()
}

// RecognizePage OCRs one page. A page whose output fails the garbage gate is
// returned with Rejected set and no text; that is not an error.
func (p *Pipeline) RecognizePage(ctx context.Context, page int, img image.Image, dpi int) (PageResult, error) {
	ctx, span := tracer.Start(ctx, "ocr.page")
	defer span.End()
	span.SetAttributes(
		attribute.Int("page", page),
		attribute.String("engine", p.engine.Name()),
	)

	if err := ctx.Err(); err != nil {
		return PageResult{}, err
	}
	if img == nil {
		return PageResult{}, fmt.Errorf("page %d: input image is nil", page)
	}
	if p.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PageTimeout)
		defer cancel()
	}

	log := p.logger.With(logger.Int("page", page))
	result := PageResult{PageNumber: page}

	if p.cfg.DetectOrientation {
		angle, err := p.engine.DetectOrientation(ctx, img)
		if err != nil {
			log.Warn("Orientation detection failed, assuming upright", logger.Error(err))
		} else if angle != 0 {
			log.Info("Correcting page rotation", logger.Int("angle", angle))
			img = Rotate(img, angle)
			result.Rotation = angle
		}
	}

	m := Measure(img)
	if p.cfg.Preprocess.ShouldPreprocess(dpi, m) {
		processed, err := p.preprocess(img)
		if err != nil {
			log.Warn("Preprocessing failed, using original image", logger.Error(err))
		} else {
			img = processed
			result.Preprocessed = true
		}
	} else {
		log.Debug("Skipping preprocessing of clean scan",
			logger.Int("dpi", dpi),
			logger.Float64("entropy", m.Entropy),
			logger.Float64("stdDev", m.StdDev),
		)
	}
	metrics.RecordPreprocessing(result.Preprocessed)

	rec, err := p.engine.Recognize(ctx, img, RecognizeOptions{Language: p.cfg.Language, Mode: p.cfg.Mode})
	if err != nil {
		metrics.RecordOCRPage("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("page %d: %w", page, err)
	}

	cleaned := CleanupArtifacts(rec.Text)
	if p.gate.IsGarbageOCROutput(cleaned) {
		log.Warn("Rejected OCR page",
			logger.String("reason", "garbage output"),
			logger.Int("characters", len(cleaned)),
		)
		metrics.RecordOCRPage("rejected")
		result.Rejected = true
		return result, nil
	}

	result.Text = cleaned
	result.Confidence = rec.Confidence
	if result.Confidence <= 0 {
		result.Confidence = models.ConfidenceFallback
	}
	result.Tables = rec.Tables
	metrics.RecordOCRPage("accepted")
	return result, nil
}

func (p *Pipeline) preprocess(img image.Image) (image.Image, error) {
	var err error
	result := img
	for _, processor := range p.chain {
		result, err = processor.Process(result)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", processor.Name(), err)
		}
		if result == nil {
			return nil, fmt.Errorf("%s returned nil image", processor.Name())
		}
	}
	return result, nil
}

// Blocks structures the surviving pages the same way basic PDF parsing
// structures native text. Engine tables follow the page text.
func Blocks(pages []PageResult) []models.ContentBlock {
	var blocks []models.ContentBlock
	for _, page := range pages {
		if page.Rejected {
			continue
		}
		blocks = append(blocks, text.Structure(page.Text, page.PageNumber, page.Confidence)...)
		for _, t := range page.Tables {
			if t.NumRows() >= 2 && t.NumCols() >= 2 && !t.IsEmpty() {
				blocks = append(blocks, models.NewTableBlock(t, page.PageNumber, page.Confidence))
			}
		}
	}
	return blocks
}
