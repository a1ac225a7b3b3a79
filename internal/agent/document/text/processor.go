// Package text handles inputs that are already text: plain text, Markdown
// and HTML. It also holds the paragraph structuring shared with the PDF and
// OCR paths.
package text

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

const (
	MimePlain    = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeHTML     = "text/html"
)

// Processor converts text inputs into content blocks. The format is fixed
// at construction so one Processor serves one MIME type.
type Processor struct {
	mimeType  string
	logger    logger.Logger
	converter *converter.Converter
}

func NewProcessor(mimeType string, log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	p := &Processor{mimeType: mimeType, logger: log.Named("text")}
	if mimeType == MimeHTML {
		p.converter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	}
	return p
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == p.mimeType
}

// Process returns paragraph blocks for plain text and header/body blocks for
// Markdown and HTML.
func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]models.ContentBlock, error) {
	content, err := p.ReadText(ctx, reader)
	if err != nil {
		return nil, err
	}
	if p.mimeType == MimePlain {
		return Structure(content, 1, models.ConfidenceNative), nil
	}
	return MarkdownBlocks(content), nil
}

// ReadText reads the input as normalized text. HTML is converted to Markdown.
func (p *Processor) ReadText(ctx context.Context, reader io.Reader) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	content := Decode(data)
	if p.mimeType == MimeHTML {
		md, err := p.converter.ConvertString(content)
		if err != nil {
			return "", fmt.Errorf("failed to convert html: %w", err)
		}
		p.logger.Debug("Converted HTML to markdown",
			logger.Int("htmlBytes", len(data)),
			logger.Int("markdownBytes", len(md)),
		)
		content = md
	}
	return content, nil
}

func (p *Processor) ExtractMetadata(ctx context.Context, reader io.Reader) (models.DocumentMetadata, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return models.DocumentMetadata{}, fmt.Errorf("failed to read text: %w", err)
	}
	hash := sha256.Sum256(data)
	hashString := hex.EncodeToString(hash[:])

	fileType := models.Text
	switch p.mimeType {
	case MimeMarkdown:
		fileType = models.Markdown
	case MimeHTML:
		fileType = models.HTML
	}

	content := Decode(data)
	title := ""
	for _, b := range MarkdownBlocks(content) {
		if b.Kind == models.BlockHeader {
			title = b.Text
			break
		}
	}

	return models.DocumentMetadata{
		ID:        hashString[:8],
		Title:     title,
		FileType:  fileType,
		FileSize:  int64(len(data)),
		MimeType:  p.mimeType,
		Pages:     1,
		CreatedAt: time.Now(),
		Hash:      hashString,
		Extra: map[string]interface{}{
			"characters": utf8.RuneCountInString(content),
		},
	}, nil
}

func (p *Processor) Close() error {
	return nil
}

// Decode returns data as NFC normalized UTF-8. Bytes that are not valid
// UTF-8 are read as Windows-1252, the usual encoding of legacy text exports.
func Decode(data []byte) string {
	data = []byte(strings.TrimPrefix(string(data), "\uFEFF"))
	if !utf8.Valid(data) {
		if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
			data = decoded
		}
	}
	return norm.NFC.String(string(data))
}

// MarkdownBlocks splits Markdown into header blocks and verbatim body blocks.
// Lines inside fenced code are never taken as headers.
func MarkdownBlocks(content string) []models.ContentBlock {
	var blocks []models.ContentBlock
	var body []string
	inFence := false

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text != "" {
			blocks = append(blocks, models.NewTextBlock(text, 1, models.ConfidenceNative))
		}
		body = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if m := markdownHeader.FindStringSubmatch(trimmed); m != nil {
				flush()
				blocks = append(blocks, models.NewHeaderBlock(m[2], len(m[1]), 1, models.ConfidenceNative))
				continue
			}
		}
		body = append(body, line)
	}
	flush()
	return blocks
}
