package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/document-chunker/internal/models"
)

// Default page size (US Letter) used when a page has no usable MediaBox.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

var errNoPositions = errors.New("reader does not expose glyph positions")

// Reader opens PDF bytes.
type Reader interface {
	Name() string
	Open(data []byte) (Document, error)
}

// Document is an open PDF. Pages are numbered from 1. Callers must Close it.
type Document interface {
	NumPages() int
	PageText(page int) (string, error)
	// PageElements returns positioned text with a top-left origin plus the
	// page size.
	PageElements(page int) (elements []models.LayoutElement, width, height float64, err error)
	Info() Info
	Close() error
}

type Info struct {
	Title  string
	Author string
}

// LedongReader reads text and glyph positions with ledongthuc/pdf.
type LedongReader struct{}

func NewLedongReader() *LedongReader {
	return &LedongReader{}
}

func (r *LedongReader) Name() string { return "ledongthuc" }

func (r *LedongReader) Open(data []byte) (Document, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	return &ledongDocument{r: pdfReader}, nil
}

type ledongDocument struct {
	r *pdf.Reader
}

func (d *ledongDocument) NumPages() int {
	return d.r.NumPage()
}

func (d *ledongDocument) PageText(page int) (string, error) {
	p := d.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("failed to get text from page %d: %w", page, err)
	}
	return text, nil
}

func (d *ledongDocument) PageElements(page int) ([]models.LayoutElement, float64, float64, error) {
	p := d.r.Page(page)
	if p.V.IsNull() {
		return nil, 0, 0, nil
	}
	width, height := mediaBox(p.V)
	return glyphElements(p.Content().Text, page, height), width, height, nil
}

func (d *ledongDocument) Info() Info {
	info := d.r.Trailer().Key("Info")
	if info.IsNull() {
		return Info{}
	}
	return Info{
		Title:  strings.TrimSpace(info.Key("Title").Text()),
		Author: strings.TrimSpace(info.Key("Author").Text()),
	}
}

func (d *ledongDocument) Close() error {
	return nil
}

// mediaBox returns the page size, following inherited MediaBox entries up
// the page tree.
func mediaBox(page pdf.Value) (float64, float64) {
	v := page
	for depth := 0; depth < 16 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			w := math.Abs(box.Index(2).Float64() - box.Index(0).Float64())
			h := math.Abs(box.Index(3).Float64() - box.Index(1).Float64())
			if w > 0 && h > 0 {
				return w, h
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageWidth, defaultPageHeight
}

// glyphElements groups glyphs into phrase elements. A glyph joins the open
// element when it sits on the same baseline and starts within one font size
// of its right edge; a gap wider than 0.3 font sizes becomes a space.
func glyphElements(glyphs []pdf.Text, page int, pageHeight float64) []models.LayoutElement {
	var out []models.LayoutElement
	var cur *phrase

	flush := func() {
		if cur == nil {
			return
		}
		if text := strings.TrimSpace(cur.b.String()); text != "" {
			size := cur.fontSize
			out = append(out, models.LayoutElement{
				ID:         fmt.Sprintf("p%d-e%d", page, len(out)+1),
				X:          cur.x,
				Y:          pageHeight - cur.baseline - size,
				Width:      cur.right - cur.x,
				Height:     size,
				Content:    text,
				FontSize:   size,
				IsBold:     cur.bold,
				IsItalic:   cur.italic,
				PageNumber: page,
				Confidence: models.ConfidenceNative,
			})
		}
		cur = nil
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		blank := strings.TrimFunc(g.S, unicode.IsSpace) == ""

		if cur != nil {
			gap := g.X - cur.right
			sameLine := math.Abs(g.Y-cur.baseline) <= size*0.2
			if !sameLine || gap > size || gap < -size {
				flush()
			} else if !blank && (gap > size*0.3 || cur.pendingSpace) {
				cur.b.WriteByte(' ')
				cur.pendingSpace = false
			}
		}

		if blank {
			if cur != nil {
				cur.pendingSpace = true
				cur.right = max(cur.right, g.X+g.W)
			}
			continue
		}
		if cur == nil {
			bold, italic := fontStyle(g.Font)
			cur = &phrase{x: g.X, right: g.X, baseline: g.Y, fontSize: size, bold: bold, italic: italic}
		}
		cur.b.WriteString(g.S)
		cur.right = max(cur.right, g.X+g.W)
		cur.fontSize = max(cur.fontSize, size)
	}
	flush()
	return out
}

type phrase struct {
	b            strings.Builder
	x, right     float64
	baseline     float64
	fontSize     float64
	bold, italic bool
	pendingSpace bool
}

// fontStyle guesses weight and slant from the base font name, for example
// "ABCDEF+Helvetica-BoldOblique".
func fontStyle(font string) (bold, italic bool) {
	name := strings.ToLower(font)
	bold = strings.Contains(name, "bold") || strings.Contains(name, "black") || strings.Contains(name, "heavy")
	italic = strings.Contains(name, "italic") || strings.Contains(name, "oblique")
	return bold, italic
}

// openDocument tries each reader in order and returns the first document
// that opens.
func openDocument(readers []Reader, data []byte) (Document, string, error) {
	var errs []error
	for _, r := range readers {
		doc, err := r.Open(data)
		if err == nil {
			return doc, r.Name(), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
	}
	if len(errs) == 0 {
		return nil, "", errors.New("no pdf reader configured")
	}
	return nil, "", errors.Join(errs...)
}
