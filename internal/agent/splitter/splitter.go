// Package splitter cuts normalized text and Markdown into semantically
// coherent chunks using embedding distances between neighbouring pieces.
package splitter

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/feichai0017/document-chunker/internal/agent/embedding"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/metrics"
)

var tracer = otel.Tracer("github.com/feichai0017/document-chunker/splitter")

// Config holds every threshold of the splitter. Sizes are in characters.
type Config struct {
	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`

	MarkdownBuffer     int     `yaml:"markdownBuffer"`
	PlainTextBuffer    int     `yaml:"plainTextBuffer"`
	MarkdownPercentile float64 `yaml:"markdownPercentile"`
	PlainPercentile    float64 `yaml:"plainPercentile"`

	// A chunk shorter than MinChunkSize is merged into the next one when
	// the two are similar enough or together stay under MaxMergedSize.
	MinChunkSize    int     `yaml:"minChunkSize"`
	MaxMergedSize   int     `yaml:"maxMergedSize"`
	MergeSimilarity float64 `yaml:"mergeSimilarity"`

	// Markdown sections longer than SectionSplitSize are split
	// semantically; shorter ones of at least MinSectionSize are kept whole.
	SectionSplitSize int `yaml:"sectionSplitSize"`
	MinSectionSize   int `yaml:"minSectionSize"`

	EmbeddingTimeout time.Duration `yaml:"embeddingTimeout"`
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:          200,
		ChunkOverlap:       20,
		MarkdownBuffer:     3,
		PlainTextBuffer:    1,
		MarkdownPercentile: 75,
		PlainPercentile:    95,
		MinChunkSize:       1000,
		MaxMergedSize:      2000,
		MergeSimilarity:    0.7,
		SectionSplitSize:   1500,
		MinSectionSize:     50,
		EmbeddingTimeout:   60 * time.Second,
	}
}

type Splitter struct {
	cfg      Config
	embedder embedding.Provider
	chars    textsplitter.RecursiveCharacter
	logger   logger.Logger
}

// New returns a splitter. Zero fields of cfg take their defaults.
func New(cfg Config, embedder embedding.Provider, log logger.Logger) *Splitter {
	if log == nil {
		log = logger.NewNop()
	}
	cfg = withDefaults(cfg)
	return &Splitter{
		cfg:      cfg,
		embedder: embedder,
		chars: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		logger: log.Named("splitter"),
	}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = min(def.ChunkOverlap, cfg.ChunkSize/2)
	}
	if cfg.MarkdownBuffer <= 0 {
		cfg.MarkdownBuffer = def.MarkdownBuffer
	}
	if cfg.PlainTextBuffer <= 0 {
		cfg.PlainTextBuffer = def.PlainTextBuffer
	}
	if cfg.MarkdownPercentile <= 0 || cfg.MarkdownPercentile > 100 {
		cfg.MarkdownPercentile = def.MarkdownPercentile
	}
	if cfg.PlainPercentile <= 0 || cfg.PlainPercentile > 100 {
		cfg.PlainPercentile = def.PlainPercentile
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
	}
	if cfg.MaxMergedSize <= 0 {
		cfg.MaxMergedSize = def.MaxMergedSize
	}
	if cfg.MergeSimilarity <= 0 {
		cfg.MergeSimilarity = def.MergeSimilarity
	}
	if cfg.SectionSplitSize <= 0 {
		cfg.SectionSplitSize = def.SectionSplitSize
	}
	if cfg.MinSectionSize <= 0 {
		cfg.MinSectionSize = def.MinSectionSize
	}
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = def.EmbeddingTimeout
	}
	return cfg
}

// SplitPlainText splits text semantically. It never fails: on any error the
// trimmed input comes back as a single unsplit chunk.
func (s *Splitter) SplitPlainText(ctx context.Context, content string) (chunks []models.Chunk) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "splitter.plain_text")
	defer span.End()
	defer s.recoverUnsplit(content, models.SourcePlainText, "", &chunks)

	groups, err := s.semantic(ctx, content, s.cfg.PlainTextBuffer, s.cfg.PlainPercentile)
	if err != nil {
		return s.unsplit(content, models.SourcePlainText, "", err)
	}
	for _, g := range groups {
		chunks = append(chunks, models.Chunk{
			Text:     g,
			Metadata: models.ChunkMetadata{SourceType: models.SourcePlainText, SplitMethod: models.SplitSemantic},
		})
	}
	chunks, err = s.merge(ctx, chunks, func(a, b models.Chunk) bool { return true })
	if err != nil {
		return s.unsplit(content, models.SourcePlainText, "", err)
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	record(chunks)
	return chunks
}

// SplitMarkdown splits Markdown by header sections first. title labels
// content that precedes the first header. It never fails: on any error the
// trimmed input comes back as a single unsplit chunk.
func (s *Splitter) SplitMarkdown(ctx context.Context, content, title string) (chunks []models.Chunk) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "splitter.markdown")
	defer span.End()
	defer s.recoverUnsplit(content, models.SourceMarkdown, title, &chunks)

	chunks, err := s.splitSections(ctx, content, title)
	if err != nil {
		return s.unsplit(content, models.SourceMarkdown, title, err)
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	record(chunks)
	return chunks
}

func (s *Splitter) unsplit(content, source, header string, cause error) []models.Chunk {
	s.logger.Warn("Splitting failed, returning input unsplit",
		logger.String("source", source),
		logger.Int("characters", len(content)),
		logger.Error(cause),
	)
	metrics.RecordSplitterFallback()
	chunks := []models.Chunk{{
		Text: content,
		Metadata: models.ChunkMetadata{
			SourceType:  source,
			HeaderText:  header,
			SplitMethod: models.SplitUnsplit,
		},
	}}
	record(chunks)
	return chunks
}

func (s *Splitter) recoverUnsplit(content, source, header string, out *[]models.Chunk) {
	if r := recover(); r != nil {
		s.logger.Error("Splitter panicked",
			logger.Any("panic", r),
			logger.String("stack", string(debug.Stack())),
		)
		*out = s.unsplit(content, source, header, fmt.Errorf("panic: %v", r))
	}
}

func record(chunks []models.Chunk) {
	for _, c := range chunks {
		metrics.RecordChunk(c.Metadata.SourceType, c.Metadata.SplitMethod)
	}
}
