package pdf

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/document-chunker/internal/agent/document/layout"
	"github.com/feichai0017/document-chunker/internal/agent/document/table"
	"github.com/feichai0017/document-chunker/internal/agent/document/text"
	"github.com/feichai0017/document-chunker/internal/models"
)

const (
	// minSharedLineRatio is the share of lines that must cross a column
	// boundary before columns are read one after the other.
	minSharedLineRatio = 0.3
	// paragraphGap is the line pitch multiple that separates paragraphs.
	paragraphGap = 1.5
	// maxHeadingRunes bounds lines that can be promoted by font size.
	maxHeadingRunes = 120
	// maxTableCellRunes is the mean cell length above which a detected grid
	// is read as side by side prose rather than a table.
	maxTableCellRunes = 40
)

var (
	pageNumberPattern = regexp.MustCompile(`(?i)^(?:page\s+)?[-–]?\s*\d{1,4}\s*[-–]?(?:\s*(?:of|/)\s*\d{1,4})?$`)
	digitRun          = regexp.MustCompile(`\d+`)
)

// pageBuilder turns analysed pages into content blocks: tables first, then
// prose grouped into paragraphs per column, with font size headers.
type pageBuilder struct {
	layout *layout.Extractor
	tables *table.Extractor
}

type placedBlock struct {
	column int
	y      float64
	block  models.ContentBlock
}

type proseColumn struct {
	minX     float64
	elements []models.LayoutElement
}

type textLine struct {
	text     string
	y        float64
	fontSize float64
	bold     bool
}

// build converts one page. margins holds normalized running header and
// footer texts to drop.
func (b *pageBuilder) build(page *models.PdfPage, margins map[string]bool) []models.ContentBlock {
	if len(page.Elements) == 0 {
		return nil
	}

	var candidates []models.TableCandidate
	for _, c := range b.tables.Detect(page.Elements) {
		if !isProseGrid(c) {
			candidates = append(candidates, c)
		}
	}
	inTable := make(map[models.LayoutElement]bool)
	for _, c := range candidates {
		for _, e := range c.Elements {
			inTable[e] = true
		}
	}

	inMargin := make(map[models.LayoutElement]bool)
	for _, r := range []*models.Region{page.HeaderRegion, page.FooterRegion} {
		if r == nil {
			continue
		}
		for _, e := range r.Elements {
			inMargin[e] = true
		}
	}

	var prose []models.LayoutElement
	for _, e := range page.Elements {
		if inTable[e] {
			continue
		}
		if inMargin[e] && (isPageNumber(e.Content) || margins[marginKey(e.Content)]) {
			continue
		}
		prose = append(prose, e)
	}

	bodySize := medianFontSize(prose)
	columns := b.proseColumns(prose, page.Width, page.Height)

	var placed []placedBlock
	for ci, col := range columns {
		for _, pb := range b.paragraphs(col.elements, page.PageNumber, bodySize) {
			pb.column = ci
			placed = append(placed, pb)
		}
	}
	for _, c := range candidates {
		placed = append(placed, placedBlock{
			column: columnAt(columns, c.BoundingBox.X),
			y:      c.BoundingBox.Y,
			block:  models.NewTableBlock(&models.TableMatrix{Rows: c.Rows}, page.PageNumber, c.Confidence),
		})
	}

	slices.SortStableFunc(placed, func(a, b placedBlock) int {
		if a.column != b.column {
			return a.column - b.column
		}
		return cmpFloat(a.y, b.y)
	})
	blocks := make([]models.ContentBlock, 0, len(placed))
	for _, p := range placed {
		blocks = append(blocks, p.block)
	}
	return blocks
}

// proseColumns keeps the layout columns only when they sit side by side;
// indented blocks in a single column layout cross no boundary on any line.
func (b *pageBuilder) proseColumns(prose []models.LayoutElement, width, height float64) []proseColumn {
	if len(prose) == 0 {
		return nil
	}
	page := b.layout.Extract(prose, width, height)
	single := []proseColumn{{minX: 0, elements: page.Elements}}
	if len(page.Columns) < 2 {
		return single
	}

	columnOf := make(map[models.LayoutElement]int, len(prose))
	for _, c := range page.Columns {
		for _, e := range c.Elements {
			columnOf[e] = c.Index
		}
	}
	lines := b.layout.Lines(prose)
	shared := 0
	for _, l := range lines {
		first := columnOf[l[0]]
		for _, e := range l[1:] {
			if columnOf[e] != first {
				shared++
				break
			}
		}
	}
	if float64(shared)/float64(len(lines)) < minSharedLineRatio {
		return single
	}

	out := make([]proseColumn, 0, len(page.Columns))
	for _, c := range page.Columns {
		if len(c.Elements) > 0 {
			out = append(out, proseColumn{minX: c.MinX, elements: c.Elements})
		}
	}
	return out
}

// paragraphs groups the lines of one column. A line set in a larger font
// than the body, or a bold title-like line, becomes a header; a vertical gap
// wider than paragraphGap line pitches ends a paragraph.
func (b *pageBuilder) paragraphs(elements []models.LayoutElement, page int, bodySize float64) []placedBlock {
	var lines []textLine
	for _, l := range b.layout.Lines(elements) {
		tl := textLine{text: layout.LineText(l), y: l[0].Y, bold: true}
		for _, e := range l {
			tl.fontSize = max(tl.fontSize, e.FontSize)
			tl.bold = tl.bold && e.IsBold
		}
		if tl.text != "" {
			lines = append(lines, tl)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	pitch := linePitch(lines, bodySize)

	var out []placedBlock
	var cur []textLine
	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		for i, l := range cur {
			texts[i] = l.text
		}
		for _, blk := range text.Structure(strings.Join(texts, "\n"), page, models.ConfidenceNative) {
			out = append(out, placedBlock{y: cur[0].y, block: blk})
		}
		cur = nil
	}

	for _, l := range lines {
		if level := headingLevel(l, bodySize); level > 0 {
			flush()
			out = append(out, placedBlock{y: l.y, block: models.NewHeaderBlock(l.text, level, page, models.ConfidenceNative)})
			continue
		}
		if len(cur) > 0 && l.y-cur[len(cur)-1].y > pitch*paragraphGap {
			flush()
		}
		cur = append(cur, l)
	}
	flush()
	return out
}

func isProseGrid(c models.TableCandidate) bool {
	var runes, cells int
	for _, row := range c.Rows {
		for _, cell := range row {
			if cell != "" {
				runes += utf8.RuneCountInString(cell)
				cells++
			}
		}
	}
	return cells > 0 && runes/cells > maxTableCellRunes
}

func headingLevel(l textLine, bodySize float64) int {
	if utf8.RuneCountInString(l.text) > maxHeadingRunes {
		return 0
	}
	if bodySize > 0 && l.fontSize > 0 {
		ratio := l.fontSize / bodySize
		switch {
		case ratio >= 1.8:
			return 1
		case ratio >= 1.4:
			return 2
		case ratio >= 1.15:
			return 3
		}
	}
	if l.bold && text.IsHeadingLine(l.text) {
		return 4
	}
	return 0
}

// linePitch is the median distance between consecutive lines.
func linePitch(lines []textLine, bodySize float64) float64 {
	var steps []float64
	for i := 1; i < len(lines); i++ {
		if d := lines[i].y - lines[i-1].y; d > 0 {
			steps = append(steps, d)
		}
	}
	if len(steps) == 0 {
		if bodySize > 0 {
			return bodySize * 1.2
		}
		return 14
	}
	slices.Sort(steps)
	return steps[len(steps)/2]
}

func medianFontSize(elements []models.LayoutElement) float64 {
	sizes := make([]float64, 0, len(elements))
	for _, e := range elements {
		if e.FontSize > 0 {
			// weight by length so a few large headings do not move the body size
			for range max(1, utf8.RuneCountInString(e.Content)/10) {
				sizes = append(sizes, e.FontSize)
			}
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	slices.Sort(sizes)
	return sizes[len(sizes)/2]
}

func columnAt(columns []proseColumn, x float64) int {
	idx := 0
	for i, c := range columns {
		if x >= c.minX {
			idx = i
		}
	}
	return idx
}

func isPageNumber(s string) bool {
	return pageNumberPattern.MatchString(strings.TrimSpace(s))
}

// marginKey normalizes header and footer text so running headers that only
// differ in a page number compare equal.
func marginKey(s string) string {
	return strings.ToLower(digitRun.ReplaceAllString(strings.Join(strings.Fields(s), " "), "#"))
}

// repeatedMargins returns the header and footer texts found on at least two
// pages and on at least half of all pages.
func repeatedMargins(pages []*models.PdfPage) map[string]bool {
	if len(pages) < 2 {
		return nil
	}
	counts := make(map[string]int)
	for _, p := range pages {
		seen := make(map[string]bool)
		for _, r := range []*models.Region{p.HeaderRegion, p.FooterRegion} {
			if r == nil {
				continue
			}
			for _, e := range r.Elements {
				if k := marginKey(e.Content); k != "" && !seen[k] {
					seen[k] = true
					counts[k]++
				}
			}
		}
	}

	out := make(map[string]bool)
	for k, n := range counts {
		if n >= 2 && float64(n) >= math.Ceil(float64(len(pages))/2) {
			out[k] = true
		}
	}
	return out
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
