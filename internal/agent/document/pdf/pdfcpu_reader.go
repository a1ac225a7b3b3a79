package pdf

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/document-chunker/internal/models"
)

// PdfcpuReader reads text straight from page content streams with pdfcpu.
// It tolerates files ledongthuc rejects but exposes no glyph positions, so
// it only serves the basic parse.
type PdfcpuReader struct {
	conf *model.Configuration
}

func NewPdfcpuReader() *PdfcpuReader {
	return &PdfcpuReader{conf: model.NewDefaultConfiguration()}
}

func (r *PdfcpuReader) Name() string { return "pdfcpu" }

func (r *PdfcpuReader) Open(data []byte) (Document, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), r.conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return &pdfcpuDocument{ctx: ctx}, nil
}

type pdfcpuDocument struct {
	ctx *model.Context
}

func (d *pdfcpuDocument) NumPages() int {
	return d.ctx.PageCount
}

func (d *pdfcpuDocument) PageText(page int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(d.ctx, page)
	if err != nil {
		return "", fmt.Errorf("failed to extract content of page %d: %w", page, err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content of page %d: %w", page, err)
	}
	return contentStreamText(data), nil
}

func (d *pdfcpuDocument) PageElements(page int) ([]models.LayoutElement, float64, float64, error) {
	return nil, 0, 0, errNoPositions
}

func (d *pdfcpuDocument) Info() Info {
	return Info{}
}

func (d *pdfcpuDocument) Close() error {
	return nil
}

var (
	pdfString  = regexp.MustCompile(`\((?:\\.|[^\\)])*\)`)
	pdfTJToken = regexp.MustCompile(`\((?:\\.|[^\\)])*\)|-?\d+(?:\.\d+)?`)
	pdfOperand = regexp.MustCompile(`(-?[\d.]+)\s+(-?[\d.]+)\s+(Td|TD)$`)
)

// contentStreamText pulls shown strings out of a content stream. Text
// objects and line moves become line breaks; a downward move of more than
// twice the last line step starts a new paragraph.
func contentStreamText(data []byte) string {
	var b strings.Builder
	var lastStep float64

	newline := func() {
		s := b.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		switch {
		case line == "ET":
			newline()
		case line == "T*":
			newline()
		case strings.HasSuffix(line, "Td") || strings.HasSuffix(line, "TD"):
			if m := pdfOperand.FindStringSubmatch(line); m != nil {
				ty, _ := strconv.ParseFloat(m[2], 64)
				if ty != 0 {
					step := -ty
					if lastStep > 0 && step > 2*lastStep {
						newline()
						b.WriteByte('\n')
					} else {
						newline()
					}
					if step > 0 && (lastStep == 0 || step < lastStep) {
						lastStep = step
					}
				} else if b.Len() > 0 {
					b.WriteByte(' ')
				}
			}
		}

		if strings.HasSuffix(line, "Tj") || strings.HasSuffix(line, "TJ") ||
			strings.HasSuffix(line, "'") || strings.HasSuffix(line, `"`) {
			if strings.HasSuffix(line, "'") || strings.HasSuffix(line, `"`) {
				newline()
			}
			if strings.HasSuffix(line, "TJ") {
				writeTJ(&b, line)
				continue
			}
			for _, m := range pdfString.FindAllString(line, -1) {
				b.WriteString(decodeLiteral(m[1 : len(m)-1]))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// tjWordGap is the kerning adjustment, in thousandths of an em, beyond
// which a TJ array gap reads as a space.
const tjWordGap = -200

func writeTJ(b *strings.Builder, line string) {
	start := strings.IndexByte(line, '[')
	end := strings.LastIndexByte(line, ']')
	if start < 0 || end < start {
		return
	}
	for _, tok := range pdfTJToken.FindAllString(line[start+1:end], -1) {
		if tok[0] == '(' {
			b.WriteString(decodeLiteral(tok[1 : len(tok)-1]))
			continue
		}
		if adj, err := strconv.ParseFloat(tok, 64); err == nil && adj <= tjWordGap {
			b.WriteByte(' ')
		}
	}
}

// decodeLiteral resolves the escape sequences of a PDF literal string.
func decodeLiteral(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			b.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b', 'f':
		case '(', ')', '\\':
			b.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				b.WriteByte(raw[i])
				continue
			}
			val := 0
			for n := 0; n < 3 && i < len(raw) && raw[i] >= '0' && raw[i] <= '7'; n++ {
				val = val*8 + int(raw[i]-'0')
				i++
			}
			i--
			b.WriteByte(byte(val))
		}
	}
	return b.String()
}
