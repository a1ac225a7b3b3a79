package docx

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/feichai0017/document-chunker/internal/agent/document/table"
	"github.com/feichai0017/document-chunker/internal/models"
)

// ConversionState holds the ordered list counters of one conversion. It
// starts empty for every document and is threaded through each call.
type ConversionState struct {
	// Counters maps a numbering instance to its per-level counters.
	Counters map[string][]int
}

func NewConversionState() ConversionState {
	return ConversionState{Counters: make(map[string][]int)}
}

// next advances the counter of numID at level and resets deeper levels.
func (s ConversionState) next(numID string, level int) (ConversionState, int) {
	if s.Counters == nil {
		s.Counters = make(map[string][]int)
	}
	counters := s.Counters[numID]
	for len(counters) <= level {
		counters = append(counters, 0)
	}
	counters[level]++
	for i := level + 1; i < len(counters); i++ {
		counters[i] = 0
	}
	s.Counters[numID] = counters
	return s, counters[level]
}

type paragraphKind int

const (
	kindText paragraphKind = iota
	kindHeader
	kindQuote
	kindCode
	kindListItem
)

// styleSheet resolves style IDs and numbering formats of one document.
type styleSheet struct {
	names    map[string]string
	outlines map[string]int
	formats  map[string]map[int]string
}

func newStyleSheet(styles *stylesXML, numbering *numberingXML) *styleSheet {
	s := &styleSheet{
		names:    make(map[string]string),
		outlines: make(map[string]int),
		formats:  make(map[string]map[int]string),
	}
	if styles != nil {
		for _, st := range styles.Styles {
			s.names[st.ID] = st.Name.Val
			if st.PPr.OutlineLvl != nil {
				if lvl, err := strconv.Atoi(st.PPr.OutlineLvl.Val); err == nil && lvl >= 0 && lvl < 9 {
					s.outlines[st.ID] = lvl + 1
				}
			}
		}
	}
	if numbering != nil {
		abstract := make(map[string]map[int]string, len(numbering.Abstract))
		for _, a := range numbering.Abstract {
			levels := make(map[int]string, len(a.Levels))
			for _, l := range a.Levels {
				if n, err := strconv.Atoi(l.ILvl); err == nil {
					levels[n] = l.NumFmt.Val
				}
			}
			abstract[a.ID] = levels
		}
		for _, n := range numbering.Nums {
			s.formats[n.ID] = abstract[n.AbstractID.Val]
		}
	}
	return s
}

// classify maps a paragraph style to a block kind. Style names are compared
// lower case without spaces, so "heading 2" and "Heading2" match.
func (s *styleSheet) classify(styleID string) (paragraphKind, int) {
	name := styleID
	if n, ok := s.names[styleID]; ok && n != "" {
		name = n
	}
	key := strings.ToLower(strings.ReplaceAll(name, " ", ""))

	switch {
	case key == "title":
		return kindHeader, 1
	case key == "subtitle":
		return kindHeader, 2
	case strings.HasPrefix(key, "heading"):
		if lvl, err := strconv.Atoi(strings.TrimPrefix(key, "heading")); err == nil && lvl > 0 {
			return kindHeader, min(lvl, 6)
		}
	case strings.Contains(key, "quote"):
		return kindQuote, 0
	case strings.Contains(key, "code"), key == "htmlpreformatted", key == "plaintext":
		return kindCode, 0
	case strings.HasPrefix(key, "list"):
		return kindListItem, 0
	}
	if lvl, ok := s.outlines[styleID]; ok {
		return kindHeader, min(lvl, 6)
	}
	return kindText, 0
}

func (s *styleSheet) ordered(numID string, level int) bool {
	switch s.formats[numID][level] {
	case "", "bullet", "none":
		return false
	}
	return true
}

// converter turns body elements into content blocks. Consecutive list items
// and code lines are grouped into one block.
type converter struct {
	styles *styleSheet
	blocks []models.ContentBlock
	list   []string
	code   []string
}

// convert walks the body in document order.
func convert(body []bodyElement, styles *styleSheet, state ConversionState) ([]models.ContentBlock, ConversionState) {
	c := &converter{styles: styles}
	for _, el := range body {
		switch {
		case el.Paragraph != nil:
			state = c.paragraph(el.Paragraph, state)
		case el.Table != nil:
			c.flush()
			c.table(el.Table)
		}
	}
	c.flush()
	return c.blocks, state
}

func (c *converter) paragraph(p *paragraphXML, state ConversionState) ConversionState {
	kind, level := c.styles.classify(p.Props.Style.Val)
	if p.Props.NumPr != nil && p.Props.NumPr.NumID.Val != "" && p.Props.NumPr.NumID.Val != "0" && kind != kindHeader {
		kind = kindListItem
	}

	if kind == kindCode {
		c.flushList()
		c.code = append(c.code, runText(p.Runs))
		return state
	}
	text := formatRuns(p.Runs)
	if text == "" {
		return state
	}

	switch kind {
	case kindListItem:
		c.flushCode()
		var line string
		line, state = c.listItem(p, text, state)
		c.list = append(c.list, line)
		return state
	case kindHeader:
		c.flush()
		c.blocks = append(c.blocks, models.NewHeaderBlock(text, level, 0, models.ConfidenceNative))
	case kindQuote:
		c.flush()
		c.blocks = append(c.blocks, models.NewTextBlock("> "+text, 0, models.ConfidenceNative))
	default:
		c.flush()
		c.blocks = append(c.blocks, models.NewTextBlock(text, 0, models.ConfidenceNative))
	}
	return state
}

func (c *converter) listItem(p *paragraphXML, text string, state ConversionState) (string, ConversionState) {
	numID, level := "", 0
	if np := p.Props.NumPr; np != nil {
		numID = np.NumID.Val
		if n, err := strconv.Atoi(np.ILvl.Val); err == nil && n >= 0 {
			level = n
		}
	}
	indent := strings.Repeat("  ", level)
	if numID == "" || !c.styles.ordered(numID, level) {
		return indent + "- " + text, state
	}
	state, n := state.next(numID, level)
	return fmt.Sprintf("%s%d. %s", indent, n, text), state
}

// table renders a one column table as a header line followed by prose, and
// anything wider as a matrix with spans resolved.
func (c *converter) table(t *tableXML) {
	rows := make([][]table.Cell, 0, len(t.Rows))
	width := 0
	for _, r := range t.Rows {
		cells := make([]table.Cell, 0, len(r.Cells))
		span := 0
		for _, tc := range r.Cells {
			cell := table.Cell{Text: cellText(tc), GridSpan: 1}
			if tc.Props.GridSpan != nil {
				if n, err := strconv.Atoi(tc.Props.GridSpan.Val); err == nil && n > 1 {
					cell.GridSpan = n
				}
			}
			if tc.Props.VMerge != nil {
				if tc.Props.VMerge.Val == "restart" {
					cell.VMerge = table.VMergeRestart
				} else {
					cell.VMerge = table.VMergeContinue
				}
			}
			span += cell.GridSpan
			cells = append(cells, cell)
		}
		width = max(width, span)
		rows = append(rows, cells)
	}
	if len(rows) == 0 || width == 0 {
		return
	}

	if width == 1 {
		first := true
		for _, r := range rows {
			if len(r) == 0 || strings.TrimSpace(r[0].Text) == "" {
				continue
			}
			text := strings.TrimSpace(r[0].Text)
			if first {
				c.blocks = append(c.blocks, models.NewHeaderBlock(text, 3, 0, models.ConfidenceNative))
				first = false
				continue
			}
			c.blocks = append(c.blocks, models.NewTextBlock(text, 0, models.ConfidenceNative))
		}
		return
	}

	matrix := table.BuildMatrix(rows)
	if !matrix.IsEmpty() {
		c.blocks = append(c.blocks, models.NewTableBlock(matrix, 0, models.ConfidenceNative))
	}
}

func (c *converter) flush() {
	c.flushList()
	c.flushCode()
}

func (c *converter) flushList() {
	if len(c.list) > 0 {
		c.blocks = append(c.blocks, models.NewListBlock(strings.Join(c.list, "\n"), 0, models.ConfidenceNative))
		c.list = nil
	}
}

func (c *converter) flushCode() {
	if len(c.code) == 0 {
		return
	}
	body := strings.Join(c.code, "\n")
	if strings.TrimSpace(body) != "" {
		c.blocks = append(c.blocks, models.NewTextBlock("```\n"+body+"\n```", 0, models.ConfidenceNative))
	}
	c.code = nil
}

func runText(runs []runXML) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// formatRuns concatenates run text and applies emphasis to the whole
// paragraph when every run carrying text has it.
func formatRuns(runs []runXML) string {
	text := strings.TrimSpace(runText(runs))
	if text == "" {
		return ""
	}
	bold, italic := true, true
	for _, r := range runs {
		if strings.IndexFunc(r.Text, func(r rune) bool { return !unicode.IsSpace(r) }) < 0 {
			continue
		}
		bold = bold && r.Props.Bold.on()
		italic = italic && r.Props.Italic.on()
	}
	switch {
	case bold && italic:
		return "**_" + text + "_**"
	case bold:
		return "**" + text + "**"
	case italic:
		return "_" + text + "_"
	}
	return text
}

func cellText(tc tableCellXML) string {
	parts := make([]string, 0, len(tc.Paragraphs))
	for _, p := range tc.Paragraphs {
		if t := strings.TrimSpace(runText(p.Runs)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
