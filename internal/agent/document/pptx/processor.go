// Package pptx extracts slide text from PresentationML files.
package pptx

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/agent/document/ooxml"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

const MimeType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

const (
	presentationPart = "ppt/presentation.xml"
	slidePrefix      = "ppt/slides/slide"
)

type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{logger: log.Named("pptx")}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == MimeType
}

// Process flattens slide text in presentation order and segments it back
// into slides: one header per slide followed by its body lines.
func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.ContentBlock, error) {
	pkg, err := open(file)
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, part := range slideParts(pkg) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := pkg.Read(part)
		if err != nil {
			p.logger.Warn("Skipping unreadable slide", logger.String("part", part), logger.Error(err))
			continue
		}
		t, err := slideText(data)
		if err != nil {
			p.logger.Warn("Skipping malformed slide", logger.String("part", part), logger.Error(err))
			continue
		}
		if t != "" {
			texts = append(texts, t)
		}
	}

	slides := SegmentSlides(strings.Join(texts, "\n\n"))
	blocks := make([]models.ContentBlock, 0, 2*len(slides))
	for _, s := range slides {
		heading := "Slide " + strconv.Itoa(s.Number)
		if s.Title != "" {
			heading += ": " + s.Title
		}
		blocks = append(blocks, models.NewHeaderBlock(heading, 2, s.Number, models.ConfidenceNative))
		switch len(s.Body) {
		case 0:
		case 1:
			blocks = append(blocks, models.NewTextBlock(s.Body[0], s.Number, models.ConfidenceNative))
		default:
			items := make([]string, len(s.Body))
			for i, l := range s.Body {
				items[i] = "- " + l
			}
			blocks = append(blocks, models.NewListBlock(strings.Join(items, "\n"), s.Number, models.ConfidenceNative))
		}
	}
	p.logger.Debug("Converted presentation",
		logger.Int("slideParts", len(texts)),
		logger.Int("slides", len(slides)),
	)
	return blocks, nil
}

func (p *Processor) ExtractMetadata(ctx context.Context, file io.Reader) (models.DocumentMetadata, error) {
	pkg, err := open(file)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	meta := pkg.Metadata(models.Slides, MimeType)
	if meta.Pages == 0 {
		meta.Pages = len(slideParts(pkg))
	}
	return meta, nil
}

func (p *Processor) Close() error {
	return nil
}

func open(file io.Reader) (*ooxml.Package, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read pptx: %w", err)
	}
	pkg, err := ooxml.Open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrUnsupportedFormat, err)
	}
	if !pkg.Has(presentationPart) && len(pkg.Names(slidePrefix)) == 0 {
		return nil, fmt.Errorf("%w: no slides found", document.ErrUnsupportedFormat)
	}
	return pkg, nil
}

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

// slideParts lists slide parts in presentation order, falling back to the
// number in the part name when the slide list cannot be resolved.
func slideParts(pkg *ooxml.Package) []string {
	var pres presentationXML
	if err := pkg.Decode(presentationPart, &pres); err == nil && len(pres.SlideIDs) > 0 {
		if rels, err := pkg.Relationships(presentationPart); err == nil {
			var parts []string
			for _, s := range pres.SlideIDs {
				if target, ok := rels[s.RID]; ok && pkg.Has(target) {
					parts = append(parts, target)
				}
			}
			if len(parts) > 0 {
				return parts
			}
		}
	}

	var parts []string
	for _, name := range pkg.Names(slidePrefix) {
		if strings.HasSuffix(name, ".xml") && !strings.Contains(name, "_rels") {
			parts = append(parts, name)
		}
	}
	slices.SortFunc(parts, func(a, b string) int {
		return slideNumber(a) - slideNumber(b)
	})
	return parts
}

func slideNumber(part string) int {
	n, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(part, slidePrefix), ".xml"))
	return n
}

// footer placeholders repeat on every slide and carry no content
var footerPlaceholders = map[string]bool{"ftr": true, "dt": true, "sldNum": true}

// slideText returns one line per paragraph of a slide, skipping footer
// placeholders. Table rows become one line with cells separated by " | ".
func slideText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		lines, shape []string
		inShape      bool
		skipShape    bool
		para         strings.Builder
		inCell       bool
		cell, row    []string
	)
	emit := func(line string) {
		switch {
		case inCell:
			cell = append(cell, line)
		case inShape:
			shape = append(shape, line)
		default:
			lines = append(lines, line)
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse slide: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				inShape, skipShape, shape = true, false, nil
			case "ph":
				for _, a := range t.Attr {
					if a.Name.Local == "type" && footerPlaceholders[a.Value] {
						skipShape = true
					}
				}
			case "p":
				para.Reset()
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return "", fmt.Errorf("failed to parse slide text: %w", err)
				}
				para.WriteString(s)
			case "br":
				para.WriteByte('\n')
			case "tr":
				row = nil
			case "tc":
				inCell, cell = true, nil
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				for _, l := range strings.Split(para.String(), "\n") {
					if l = strings.TrimSpace(l); l != "" {
						emit(l)
					}
				}
				para.Reset()
			case "tc":
				inCell = false
				row = append(row, strings.Join(cell, " "))
			case "tr":
				if strings.TrimSpace(strings.Join(row, "")) != "" {
					emit(strings.Join(row, " | "))
				}
			case "sp":
				if !skipShape {
					lines = append(lines, shape...)
				}
				inShape = false
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
