package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/agent/splitter"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/fetch"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/metrics"
)

var tracer = otel.Tracer("github.com/feichai0017/document-chunker/agent")

// Source is the document to chunk: inline bytes, or a location the fetcher
// understands (local path, http(s), s3://, minio://).
type Source struct {
	Name     string
	Data     []byte
	Location string
}

func FromBytes(name string, data []byte) Source { return Source{Name: name, Data: data} }

func FromLocation(location string) Source { return Source{Location: location} }

// Options bound the collaborator calls of one ExtractAndChunk call. Zero
// durations mean no extra deadline beyond ctx.
type Options struct {
	OCRTimeout       time.Duration `yaml:"ocrTimeout"`
	EmbeddingTimeout time.Duration `yaml:"embeddingTimeout"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	// Title labels content before the first header. Defaults to the
	// document title or file name.
	Title string `yaml:"-"`
}

// textReader is implemented by processors whose input already is text, so
// Markdown reaches the splitter verbatim.
type textReader interface {
	ReadText(ctx context.Context, r io.Reader) (string, error)
}

// Pipeline turns one document into chunks: resolve the format, extract
// content blocks, normalize them and split.
type Pipeline struct {
	factory  *ProcessorFactory
	splitter *splitter.Splitter
	fetcher  *fetch.Fetcher
	logger   logger.Logger
}

func NewPipeline(factory *ProcessorFactory, split *splitter.Splitter, fetcher *fetch.Fetcher, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	if fetcher == nil {
		fetcher = fetch.New(log)
	}
	return &Pipeline{
		factory:  factory,
		splitter: split,
		fetcher:  fetcher,
		logger:   log.Named("pipeline"),
	}
}

// ExtractAndChunk returns the chunks of src. fileType may be an extension,
// a MIME type or empty; when it is empty or unknown the source name and
// then its content decide. Unsupported formats fail with
// document.ErrUnsupportedFormat and a document without any extractable
// content with document.ErrNoContent.
func (p *Pipeline) ExtractAndChunk(ctx context.Context, fileType string, src Source, opts Options) (chunks []models.Chunk, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.extract_and_chunk")
	defer span.End()
	log := logger.FromContext(ctx, p.logger)
	start := time.Now()
	label := "unknown"
	defer func() {
		metrics.RecordDocument(label, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	data, name, err := p.load(ctx, src, opts.FetchTimeout)
	if err != nil {
		return nil, err
	}
	if fileType == "" {
		fileType = filepath.Ext(name)
	}
	mimeType, processor, err := p.factory.Resolve(fileType, data)
	if err != nil {
		return nil, err
	}
	kind := FileTypeOf(mimeType)
	label = string(kind)
	span.SetAttributes(
		attribute.String("mime_type", mimeType),
		attribute.Int("bytes", len(data)),
	)

	content, title, err := p.extract(ctx, kind, processor, data, opts.OCRTimeout)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: %s", document.ErrNoContent, name)
	}
	if opts.Title != "" {
		title = opts.Title
	}
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}

	splitCtx := ctx
	if opts.EmbeddingTimeout > 0 {
		var cancel context.CancelFunc
		splitCtx, cancel = context.WithTimeout(ctx, opts.EmbeddingTimeout)
		defer cancel()
	}
	if kind == models.Text {
		chunks = p.splitter.SplitPlainText(splitCtx, content)
	} else {
		chunks = p.splitter.SplitMarkdown(splitCtx, content, title)
	}

	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	log.Info("Document chunked",
		logger.String("name", name),
		logger.String("fileType", label),
		logger.Int("characters", len(content)),
		logger.Int("chunks", len(chunks)),
		logger.Duration("took", time.Since(start)),
	)
	return chunks, nil
}

// SplitMarkdown chunks already normalized Markdown.
func (p *Pipeline) SplitMarkdown(ctx context.Context, content, title string) []models.Chunk {
	return p.splitter.SplitMarkdown(ctx, content, title)
}

// SplitPlainText chunks already normalized plain text.
func (p *Pipeline) SplitPlainText(ctx context.Context, content string) []models.Chunk {
	return p.splitter.SplitPlainText(ctx, content)
}

func (p *Pipeline) load(ctx context.Context, src Source, timeout time.Duration) ([]byte, string, error) {
	if src.Data != nil || src.Location == "" {
		if len(src.Data) == 0 {
			return nil, "", fmt.Errorf("%w: empty source", document.ErrNoContent)
		}
		return src.Data, src.Name, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	data, name, err := p.fetcher.Fetch(ctx, src.Location)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch source: %w", err)
	}
	if src.Name != "" {
		name = src.Name
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty source %s", document.ErrNoContent, name)
	}
	return data, name, nil
}

// extract runs the processor and normalizes its blocks: plain text for text
// inputs, Markdown for everything else. The OCR timeout bounds formats that
// may go through OCR.
func (p *Pipeline) extract(ctx context.Context, kind models.FileType, processor document.Processor, data []byte, ocrTimeout time.Duration) (string, string, error) {
	if ocrTimeout > 0 && (kind == models.PDF || kind == models.Image) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ocrTimeout)
		defer cancel()
	}

	if tr, ok := processor.(textReader); ok && (kind == models.Markdown || kind == models.HTML) {
		content, err := tr.ReadText(ctx, bytes.NewReader(data))
		if err != nil {
			return "", "", fmt.Errorf("failed to read %s: %w", kind, err)
		}
		return content, "", nil
	}

	blocks, err := processor.Process(ctx, bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, document.ErrUnsupportedFormat) || errors.Is(err, document.ErrNoContent) {
			return "", "", err
		}
		return "", "", fmt.Errorf("failed to extract %s: %w", kind, err)
	}

	title := ""
	if kind != models.Text {
		if meta, err := processor.ExtractMetadata(ctx, bytes.NewReader(data)); err == nil {
			title = meta.Title
		} else {
			p.logger.Debug("No document metadata", logger.String("fileType", string(kind)), logger.Error(err))
		}
	}

	if kind == models.Text {
		return document.PlainText(blocks), title, nil
	}
	return document.RenderMarkdown(blocks), title, nil
}
