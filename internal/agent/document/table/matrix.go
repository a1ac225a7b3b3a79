package table

import (
	"strings"

	"github.com/feichai0017/document-chunker/internal/models"
)

// VMerge is the vertical merge state of a source cell.
type VMerge int

const (
	VMergeNone VMerge = iota
	// VMergeRestart starts a vertically merged range; its text is carried down.
	VMergeRestart
	// VMergeContinue continues the range started above.
	VMergeContinue
)

// Cell is a source table cell with span metadata, as exposed by word
// processing formats.
type Cell struct {
	Text     string
	GridSpan int
	VMerge   VMerge
}

// BuildMatrix lays cells onto a rectangular grid. Horizontally spanned cells
// repeat their text across every spanned column and vertically merged cells
// repeat the text of the restart cell above them.
func BuildMatrix(rows [][]Cell) *models.TableMatrix {
	grid := make([][]string, 0, len(rows))
	width := 0

	for i, row := range rows {
		var out []string
		for _, c := range row {
			span := c.GridSpan
			if span < 1 {
				span = 1
			}
			for k := 0; k < span; k++ {
				col := len(out)
				text := strings.TrimSpace(c.Text)
				if c.VMerge == VMergeContinue && i > 0 && col < len(grid[i-1]) {
					text = grid[i-1][col]
				}
				out = append(out, text)
			}
		}
		grid = append(grid, out)
		width = max(width, len(out))
	}

	for i := range grid {
		for len(grid[i]) < width {
			grid[i] = append(grid[i], "")
		}
	}
	return &models.TableMatrix{Rows: grid}
}

// Markdown renders m as a pipe table whose first row is the header.
func Markdown(m *models.TableMatrix) string {
	cols := m.NumCols()
	if cols == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = escapeCell(row[j])
			}
			b.WriteString(" ")
			b.WriteString(cell)
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(m.Rows[0])
	b.WriteString("|")
	for j := 0; j < cols; j++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range m.Rows[1:] {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
