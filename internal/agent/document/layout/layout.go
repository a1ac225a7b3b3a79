// Package layout reconstructs reading order, columns and page regions from
// positioned text elements.
package layout

import (
	"math"
	"slices"
	"strings"

	"github.com/feichai0017/document-chunker/internal/models"
)

// Config holds the layout tolerances, in PDF user space units.
type Config struct {
	// LineTolerance is the max Y distance for two elements to share a line.
	LineTolerance float64 `yaml:"lineTolerance"`
	// ColumnGap is the X gap between distinct start positions that opens a new column.
	ColumnGap float64 `yaml:"columnGap"`
	// HeaderRatio is the fraction of page height treated as the header band.
	HeaderRatio float64 `yaml:"headerRatio"`
	// FooterRatio is the fraction of page height treated as the footer band.
	FooterRatio float64 `yaml:"footerRatio"`
}

func DefaultConfig() Config {
	return Config{
		LineTolerance: 5,
		ColumnGap:     20,
		HeaderRatio:   0.15,
		FooterRatio:   0.15,
	}
}

type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.LineTolerance <= 0 {
		cfg.LineTolerance = def.LineTolerance
	}
	if cfg.ColumnGap <= 0 {
		cfg.ColumnGap = def.ColumnGap
	}
	if cfg.HeaderRatio <= 0 {
		cfg.HeaderRatio = def.HeaderRatio
	}
	if cfg.FooterRatio <= 0 {
		cfg.FooterRatio = def.FooterRatio
	}
	return &Extractor{cfg: cfg}
}

// Extract runs layout analysis with the default configuration.
func Extract(elements []models.LayoutElement, width, height float64) *models.PdfPage {
	return NewExtractor(DefaultConfig()).Extract(elements, width, height)
}

// Extract builds the page structure for one page. It never fails: an empty
// input yields an empty page.
func (x *Extractor) Extract(elements []models.LayoutElement, width, height float64) *models.PdfPage {
	page := &models.PdfPage{Width: width, Height: height}
	if len(elements) == 0 {
		return page
	}
	page.PageNumber = elements[0].PageNumber

	ordered := x.ReadingOrder(elements)
	page.Elements = ordered

	if page.Height <= 0 || page.Width <= 0 {
		box := models.BoundingBox(ordered)
		if page.Width <= 0 {
			page.Width = box.Right()
		}
		if page.Height <= 0 {
			page.Height = box.Bottom()
		}
	}

	page.Columns = x.columns(ordered, page.Width)
	page.HeaderRegion, page.ContentRegion, page.FooterRegion = x.regions(ordered, page.Width, page.Height)
	return page
}

// ReadingOrder sorts elements top to bottom, treating elements within the
// line tolerance as one line, then left to right.
func (x *Extractor) ReadingOrder(elements []models.LayoutElement) []models.LayoutElement {
	lines := x.Lines(elements)
	out := make([]models.LayoutElement, 0, len(elements))
	for _, l := range lines {
		out = append(out, l...)
	}
	return out
}

// Lines groups elements into visual lines in reading order.
func (x *Extractor) Lines(elements []models.LayoutElement) [][]models.LayoutElement {
	if len(elements) == 0 {
		return nil
	}
	sorted := slices.Clone(elements)
	slices.SortStableFunc(sorted, func(a, b models.LayoutElement) int {
		return cmpFloat(a.Y, b.Y)
	})

	var lines [][]models.LayoutElement
	current := []models.LayoutElement{sorted[0]}
	anchor := sorted[0].Y
	for _, e := range sorted[1:] {
		if math.Abs(e.Y-anchor) <= x.cfg.LineTolerance {
			current = append(current, e)
			continue
		}
		lines = append(lines, current)
		current = []models.LayoutElement{e}
		anchor = e.Y
	}
	lines = append(lines, current)

	for _, l := range lines {
		slices.SortStableFunc(l, func(a, b models.LayoutElement) int {
			return cmpFloat(a.X, b.X)
		})
	}
	return lines
}

// Lines groups elements with the default configuration.
func Lines(elements []models.LayoutElement) [][]models.LayoutElement {
	return NewExtractor(DefaultConfig()).Lines(elements)
}

// LineText joins the content of one line.
func LineText(line []models.LayoutElement) string {
	parts := make([]string, 0, len(line))
	for _, e := range line {
		if t := strings.TrimSpace(e.Content); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (x *Extractor) columns(elements []models.LayoutElement, width float64) []models.Column {
	starts := make([]float64, 0, len(elements))
	for _, e := range elements {
		starts = append(starts, e.X)
	}
	slices.Sort(starts)
	starts = slices.Compact(starts)

	// range starts: the first X, then every X that follows a gap wider than ColumnGap
	bounds := []float64{starts[0]}
	for i := 1; i < len(starts); i++ {
		if starts[i]-starts[i-1] > x.cfg.ColumnGap {
			bounds = append(bounds, starts[i])
		}
	}

	if len(bounds) == 1 {
		return []models.Column{{
			Index:    0,
			MinX:     0,
			MaxX:     width,
			Elements: slices.Clone(elements),
		}}
	}

	cols := make([]models.Column, len(bounds))
	for i, b := range bounds {
		cols[i] = models.Column{Index: i, MinX: b, MaxX: b}
	}
	for _, e := range elements {
		idx := 0
		for i, b := range bounds {
			if e.X >= b {
				idx = i
			}
		}
		cols[idx].Elements = append(cols[idx].Elements, e)
		cols[idx].MaxX = max(cols[idx].MaxX, e.Right())
	}
	return cols
}

func (x *Extractor) regions(elements []models.LayoutElement, width, height float64) (header, content, footer *models.Region) {
	headerLimit := height * x.cfg.HeaderRatio
	footerLimit := height * (1 - x.cfg.FooterRatio)

	var top, mid, bottom []models.LayoutElement
	for _, e := range elements {
		switch {
		case e.Y < headerLimit:
			top = append(top, e)
		case e.Y >= footerLimit:
			bottom = append(bottom, e)
		default:
			mid = append(mid, e)
		}
	}

	if len(top) > 0 {
		header = &models.Region{
			Bounds:   models.Rect{X: 0, Y: 0, Width: width, Height: headerLimit},
			Elements: top,
		}
	}
	if len(bottom) > 0 {
		footer = &models.Region{
			Bounds:   models.Rect{X: 0, Y: footerLimit, Width: width, Height: height - footerLimit},
			Elements: bottom,
		}
	}
	if len(mid) > 0 {
		content = &models.Region{
			Bounds:   models.Rect{X: 0, Y: headerLimit, Width: width, Height: footerLimit - headerLimit},
			Elements: mid,
		}
	}
	return header, content, footer
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
