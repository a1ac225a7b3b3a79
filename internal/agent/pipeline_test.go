package agent

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/agent/document/docx"
	"github.com/feichai0017/document-chunker/internal/agent/document/text"
	"github.com/feichai0017/document-chunker/internal/agent/embedding"
	"github.com/feichai0017/document-chunker/internal/agent/splitter"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

type fakeProcessor struct {
	blocks      []models.ContentBlock
	err         error
	title       string
	hadDeadline bool
	closed      int
}

func (f *fakeProcessor) CanProcess(string) bool { return true }

func (f *fakeProcessor) Process(ctx context.Context, r io.Reader) ([]models.ContentBlock, error) {
	_, f.hadDeadline = ctx.Deadline()
	return f.blocks, f.err
}

func (f *fakeProcessor) ExtractMetadata(ctx context.Context, r io.Reader) (models.DocumentMetadata, error) {
	return models.DocumentMetadata{Title: f.title}, nil
}

func (f *fakeProcessor) Close() error {
	f.closed++
	return nil
}

const twoSections = "# Report\n\n" +
	"## Revenue\n\nRevenue grew by twelve percent year over year across every region we serve.\n\n" +
	"## Costs\n\nCosts stayed flat because the new warehouse replaced two older rented sites."

func newTestPipeline(t *testing.T, extra map[string]document.Processor) (*Pipeline, *logger.TestLogger) {
	t.Helper()
	log := logger.NewTestLogger()
	f := NewProcessorFactory(log)
	for _, m := range []string{text.MimePlain, text.MimeMarkdown, text.MimeHTML} {
		f.Register(text.NewProcessor(m, log), m)
	}
	for m, p := range extra {
		f.Register(p, m)
	}
	s := splitter.New(splitter.Config{}, embedding.NewHashing(64), log)
	return NewPipeline(f, s, nil, log), log
}

func TestExtractAndChunk_Markdown(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	chunks, err := p.ExtractAndChunk(context.Background(), "md", FromBytes("report.md", []byte(twoSections)), Options{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, models.SplitHeaderSection, c.Metadata.SplitMethod)
		assert.Equal(t, models.SourceMarkdown, c.Metadata.SourceType)
	}
	assert.Equal(t, "Costs", chunks[1].Metadata.HeaderText)
}

func TestExtractAndChunk_PlainTextSniffed(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	chunks, err := p.ExtractAndChunk(context.Background(), "", FromBytes("", []byte("A. B. C.")), Options{})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "A. B. C.", chunks[0].Text)
	assert.Equal(t, models.SourcePlainText, chunks[0].Metadata.SourceType)
}

func TestExtractAndChunk_StructuredBlocks(t *testing.T) {
	pdf := &fakeProcessor{
		title: "Parts list",
		blocks: []models.ContentBlock{
			models.NewTextBlock("Intro text that comes before any table and is long enough to keep.", 1, models.ConfidenceNative),
			models.NewTableBlock(&models.TableMatrix{Rows: [][]string{{"Item", "Qty"}, {"Bolt", "4"}}}, 2, models.ConfidenceNative),
		},
	}
	p, _ := newTestPipeline(t, map[string]document.Processor{mimePDF: pdf})

	chunks, err := p.ExtractAndChunk(context.Background(), "", FromBytes("scan.bin", []byte("%PDF-1.7\n%fake")), Options{OCRTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, pdf.hadDeadline)
	assert.Equal(t, "Parts list", chunks[0].Metadata.HeaderText)
	assert.Equal(t, models.SplitTableSection, chunks[1].Metadata.SplitMethod)
	assert.Contains(t, chunks[1].Text, "| Bolt | 4 |")
}

func TestExtractAndChunk_TableAfterHeadingStaysSeparate(t *testing.T) {
	doc := &fakeProcessor{
		blocks: []models.ContentBlock{
			models.NewHeaderBlock("Results", 2, 1, models.ConfidenceNative),
			models.NewTableBlock(&models.TableMatrix{Rows: [][]string{{"metric", "value"}, {"alpha", "1"}, {"beta", "2"}}}, 1, models.ConfidenceNative),
			models.NewTextBlock("The discussion paragraph after the table explains why alpha beat beta.", 1, models.ConfidenceNative),
		},
	}
	p, _ := newTestPipeline(t, map[string]document.Processor{docx.MimeType: doc})

	chunks, err := p.ExtractAndChunk(context.Background(), "docx", FromBytes("results.docx", []byte("PK\x03\x04")), Options{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, models.SplitTableSection, chunks[0].Metadata.SplitMethod)
	assert.Contains(t, chunks[0].Text, "| beta | 2 |")
	assert.NotContains(t, chunks[0].Text, "discussion")
	assert.NotContains(t, chunks[1].Text, "|")
	assert.Equal(t, "Results", chunks[1].Metadata.HeaderText)
}

func TestExtractAndChunk_Errors(t *testing.T) {
	empty := &fakeProcessor{blocks: []models.ContentBlock{models.NewTextBlock("   ", 1, 0.9)}}
	none := &fakeProcessor{err: document.ErrNoContent}
	p, _ := newTestPipeline(t, map[string]document.Processor{docx.MimeType: empty, mimePDF: none})
	ctx := context.Background()

	_, err := p.ExtractAndChunk(ctx, "exe", FromBytes("a.exe", []byte("MZ\x90\x00\x03\x00")), Options{})
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)

	_, err = p.ExtractAndChunk(ctx, "docx", FromBytes("a.docx", []byte("PK")), Options{})
	assert.ErrorIs(t, err, document.ErrNoContent)

	_, err = p.ExtractAndChunk(ctx, "application/pdf", FromBytes("a.pdf", []byte("%PDF-1.4")), Options{})
	assert.ErrorIs(t, err, document.ErrNoContent)

	_, err = p.ExtractAndChunk(ctx, "txt", FromBytes("a.txt", nil), Options{})
	assert.ErrorIs(t, err, document.ErrNoContent)
}

func TestExtractAndChunk_FromLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte(twoSections), 0o644))
	p, log := newTestPipeline(t, nil)

	chunks, err := p.ExtractAndChunk(context.Background(), "", FromLocation(path), Options{FetchTimeout: time.Second})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Contains(t, log.Messages("INFO"), "Document chunked")
}

func TestPipeline_SplitEntryPoints(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	md := p.SplitMarkdown(ctx, twoSections, "Annual")
	require.Len(t, md, 2)
	again := p.SplitMarkdown(ctx, twoSections, "Annual")
	assert.Equal(t, md, again)

	plain := p.SplitPlainText(ctx, "A. B. C.")
	require.Len(t, plain, 1)
	assert.True(t, strings.HasPrefix(plain[0].Text, "A."))
}
