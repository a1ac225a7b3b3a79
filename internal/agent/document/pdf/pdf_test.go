package pdf

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	ocr "github.com/feichai0017/document-chunker/internal/agent/document/image"
	"github.com/feichai0017/document-chunker/internal/agent/document/quality"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

const (
	cleanLine = "The quarterly report describes revenue growth across all regions of the company."
	ocrText   = cleanLine + "\n\nSales grew in every market."
)

type fakePage struct {
	text     string
	elements []models.LayoutElement
}

type fakeDocument struct {
	mu        sync.Mutex
	pages     []fakePage
	textCalls int
}

func (d *fakeDocument) NumPages() int { return len(d.pages) }

func (d *fakeDocument) PageText(page int) (string, error) {
	d.mu.Lock()
	d.textCalls++
	d.mu.Unlock()
	return d.pages[page-1].text, nil
}

func (d *fakeDocument) PageElements(page int) ([]models.LayoutElement, float64, float64, error) {
	return d.pages[page-1].elements, defaultPageWidth, defaultPageHeight, nil
}

func (d *fakeDocument) Info() Info { return Info{Title: "Quarterly Report", Author: "Finance"} }

func (d *fakeDocument) Close() error { return nil }

type fakeReader struct {
	doc *fakeDocument
	err error
}

func (r *fakeReader) Name() string { return "fake" }

func (r *fakeReader) Open(data []byte) (Document, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.doc, nil
}

type fakeRasterizer struct {
	pages    int
	maxPages int
}

func (f *fakeRasterizer) RenderPages(ctx context.Context, data []byte, maxPages, dpi int, fn func(page int, img image.Image) error) error {
	f.maxPages = maxPages
	n := f.pages
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	for i := 1; i <= n; i++ {
		if err := fn(i, image.NewGray(image.Rect(0, 0, 64, 64))); err != nil {
			return err
		}
	}
	return nil
}

// scriptedEngine returns texts in call order, repeating the last one.
type scriptedEngine struct {
	mu    sync.Mutex
	texts []string
	calls int
}

func (e *scriptedEngine) Name() string { return "scripted" }

func (e *scriptedEngine) Recognize(ctx context.Context, img image.Image, opts ocr.RecognizeOptions) (ocr.Recognition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.texts[min(e.calls, len(e.texts)-1)]
	e.calls++
	return ocr.Recognition{Text: t, Confidence: 0.9}, nil
}

func (e *scriptedEngine) DetectOrientation(ctx context.Context, img image.Image) (int, error) {
	return 0, nil
}

type funcStage struct {
	name string
	fn   func(ctx context.Context, a *Attempt) (Result, error)
}

func (s *funcStage) Name() string { return s.name }

func (s *funcStage) Run(ctx context.Context, a *Attempt) (Result, error) {
	return s.fn(ctx, a)
}

func textStage(name, body string) *funcStage {
	return &funcStage{name: name, fn: func(ctx context.Context, a *Attempt) (Result, error) {
		return newResult([]models.ContentBlock{models.NewTextBlock(body, 1, models.ConfidenceNative)}, false), nil
	}}
}

func element(x, y float64, content string, size float64) models.LayoutElement {
	return models.LayoutElement{
		X:          x,
		Y:          y,
		Width:      float64(len(content)) * 4,
		Height:     size,
		Content:    content,
		FontSize:   size,
		PageNumber: 1,
	}
}

func newTestProcessor(doc *fakeDocument, raster Rasterizer, engine ocr.Engine, enableOCR bool, log logger.Logger) *Processor {
	gate := quality.NewGate(quality.DefaultThresholds(), log)
	var pipeline *ocr.Pipeline
	if engine != nil {
		pipeline = ocr.NewPipeline(engine, gate, ocr.DefaultOCRConfig(), log)
	}
	return NewProcessor(Options{
		Readers:    []Reader{&fakeReader{doc: doc}},
		Rasterizer: raster,
		OCR:        pipeline,
		Gate:       gate,
		EnableOCR:  enableOCR,
	}, log)
}

func TestProcess_AcceptsIntelligentParse(t *testing.T) {
	doc := &fakeDocument{pages: []fakePage{{
		elements: []models.LayoutElement{
			element(72, 150, "Quarterly Results", 18),
			element(72, 180, cleanLine, 10),
			element(72, 194, cleanLine, 10),
			element(72, 208, cleanLine, 10),
			element(72, 250, cleanLine, 10),
			element(72, 264, cleanLine, 10),
		},
	}}}
	p := newTestProcessor(doc, nil, nil, false, nil)

	blocks, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, models.BlockHeader, blocks[0].Kind)
	assert.Equal(t, "Quarterly Results", blocks[0].Text)
	assert.Equal(t, 1, blocks[0].Level)
	assert.Equal(t, strings.Repeat(cleanLine+" ", 2)+cleanLine, blocks[1].Text)
	assert.Equal(t, cleanLine+" "+cleanLine, blocks[2].Text)
	assert.Zero(t, doc.textCalls, "basic parse must not run after an accepted stage")
}

func TestProcess_ScannedBasicParseForcesOCR(t *testing.T) {
	log := logger.NewTestLogger()
	doc := &fakeDocument{pages: []fakePage{{text: "Scan 001"}, {text: ""}}}
	raster := &fakeRasterizer{pages: 2}
	engine := &scriptedEngine{texts: []string{ocrText}}
	p := newTestProcessor(doc, raster, engine, false, log)

	blocks, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	assert.Equal(t, 1, blocks[0].PageNumber)
	assert.Equal(t, 2, blocks[3].PageNumber)
	assert.Equal(t, cleanLine, blocks[0].Text)
	assert.Contains(t, log.Messages("WARN"), "Basic parse looks scanned, enabling OCR despite configuration")
	assert.Equal(t, 2, engine.calls)
}

func TestProcess_OCRSkippedWhenDisabled(t *testing.T) {
	doc := &fakeDocument{pages: []fakePage{{text: ""}}}
	engine := &scriptedEngine{texts: []string{ocrText}}
	p := newTestProcessor(doc, &fakeRasterizer{pages: 1}, engine, false, nil)

	_, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	assert.ErrorIs(t, err, document.ErrNoContent)
	assert.Zero(t, engine.calls)
}

func TestProcess_DropsGarbageOCRPages(t *testing.T) {
	log := logger.NewTestLogger()
	doc := &fakeDocument{pages: []fakePage{{}, {}}}
	engine := &scriptedEngine{texts: []string{"§§§§§ |||| {{{{", ocrText}}
	p := newTestProcessor(doc, &fakeRasterizer{pages: 2}, engine, true, log)

	blocks, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	require.NotEmpty(t, blocks)
	for _, b := range blocks {
		assert.Equal(t, 2, b.PageNumber)
	}
	assert.Contains(t, log.Messages("WARN"), "Rejected OCR page")
}

func TestProcess_OCRPageCap(t *testing.T) {
	doc := &fakeDocument{pages: []fakePage{{}}}
	raster := &fakeRasterizer{pages: 30}
	engine := &scriptedEngine{texts: []string{ocrText}}
	p := newTestProcessor(doc, raster, engine, true, nil)

	_, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, 20, raster.maxPages)
	assert.Equal(t, 20, engine.calls)
}

func TestProcess_OCRPageCapIgnoresLargerConfig(t *testing.T) {
	doc := &fakeDocument{pages: []fakePage{{}}}
	raster := &fakeRasterizer{pages: 30}
	engine := &scriptedEngine{texts: []string{ocrText}}
	cfg := ocr.DefaultOCRConfig()
	cfg.MaxPages = 100
	gate := quality.NewGate(quality.DefaultThresholds(), nil)
	p := NewProcessor(Options{
		Readers:    []Reader{&fakeReader{doc: doc}},
		Rasterizer: raster,
		OCR:        ocr.NewPipeline(engine, gate, cfg, nil),
		Gate:       gate,
		EnableOCR:  true,
	}, nil)

	_, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, ocr.MaxOCRPages, raster.maxPages)
	assert.Equal(t, ocr.MaxOCRPages, engine.calls)
}

func TestProcess_OCRWithoutEngineFallsBack(t *testing.T) {
	doc := &fakeDocument{pages: []fakePage{{text: "Scan 001"}}}
	p := newTestProcessor(doc, nil, nil, true, nil)

	blocks, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Scan 001", blocks[0].Text)
}

func TestProcess_RecoversStagePanic(t *testing.T) {
	log := logger.NewTestLogger()
	stages := []Stage{
		&funcStage{name: "boom", fn: func(ctx context.Context, a *Attempt) (Result, error) {
			panic("corrupt xref table")
		}},
		&funcStage{name: "broken", fn: func(ctx context.Context, a *Attempt) (Result, error) {
			return Result{}, errors.New("unsupported filter")
		}},
		textStage("good", strings.Repeat(cleanLine+" ", 3)),
	}
	p := NewProcessorWithStages(stages, nil, nil, false, log)

	blocks, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Contains(t, log.Messages("ERROR"), "Stage panicked")
	assert.Contains(t, log.Messages("WARN"), "Stage failed, falling back")
}

func TestProcess_ReturnsLongestPartialResult(t *testing.T) {
	stages := []Stage{
		textStage("first", "Brief scan"),
		textStage("second", "A longer scan fragment"),
		textStage("third", "Short one"),
	}
	p := NewProcessorWithStages(stages, nil, nil, false, nil)

	blocks, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "A longer scan fragment", blocks[0].Text)
}

func TestProcess_PartialTieKeepsEarlierStage(t *testing.T) {
	stages := []Stage{
		textStage("first", "Scan page one"),
		textStage("second", "Scan page two"),
	}
	p := NewProcessorWithStages(stages, nil, nil, false, nil)

	blocks, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Scan page one", blocks[0].Text)
}

func TestProcess_AllStagesEmpty(t *testing.T) {
	empty := &funcStage{name: "empty", fn: func(ctx context.Context, a *Attempt) (Result, error) {
		return Result{}, nil
	}}
	p := NewProcessorWithStages([]Stage{empty, empty}, nil, nil, false, nil)

	_, err := p.Process(context.Background(), strings.NewReader("%PDF-1.7"))
	assert.ErrorIs(t, err, document.ErrNoContent)
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewProcessorWithStages([]Stage{textStage("good", cleanLine)}, nil, nil, false, nil)

	_, err := p.Process(ctx, strings.NewReader("%PDF-1.7"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractMetadata(t *testing.T) {
	doc := &fakeDocument{pages: []fakePage{{}, {}, {}}}
	p := newTestProcessor(doc, nil, nil, false, nil)

	meta, err := p.ExtractMetadata(context.Background(), strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Pages)
	assert.Equal(t, "Quarterly Report", meta.Title)
	assert.Equal(t, "Finance", meta.Author)
	assert.Equal(t, models.PDF, meta.FileType)
	assert.Equal(t, "fake", meta.Extra["reader"])
	assert.Len(t, meta.ID, 8)
}

func TestOpenDocument_FallsBackAcrossReaders(t *testing.T) {
	doc := &fakeDocument{pages: []fakePage{{}}}
	readers := []Reader{&fakeReader{err: errors.New("bad xref")}, &fakeReader{doc: doc}}

	got, name, err := openDocument(readers, nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", name)
	assert.Equal(t, 1, got.NumPages())

	_, _, err = openDocument(readers[:1], nil)
	assert.ErrorContains(t, err, "bad xref")
}
