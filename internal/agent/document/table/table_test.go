package table

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

// grid lays out cells as elements with 100 units between columns and 12 between rows.
func grid(originX, originY float64, cells [][]string) []models.LayoutElement {
	var out []models.LayoutElement
	for i, row := range cells {
		for j, text := range row {
			if text == "" {
				continue
			}
			out = append(out, models.LayoutElement{
				ID:         fmt.Sprintf("r%dc%d", i, j),
				X:          originX + float64(j)*100,
				Y:          originY + float64(i)*12,
				Width:      60,
				Height:     10,
				Content:    text,
				PageNumber: 1,
			})
		}
	}
	return out
}

func TestExtract_SimpleGrid(t *testing.T) {
	x := NewExtractor(DefaultConfig(), logger.NewTestLogger())
	elements := grid(50, 100, [][]string{
		{"Name", "Qty", "Price"},
		{"Apple", "3", "1.20"},
		{"Pear", "5", "0.80"},
	})

	blocks := x.Extract(elements)

	require.Len(t, blocks, 1)
	assert.Equal(t, models.BlockTable, blocks[0].Kind)
	assert.Equal(t, 1, blocks[0].PageNumber)
	assert.Equal(t, [][]string{
		{"Name", "Qty", "Price"},
		{"Apple", "3", "1.20"},
		{"Pear", "5", "0.80"},
	}, blocks[0].Table.Rows)
	assert.InDelta(t, 1.0, blocks[0].Confidence, 1e-9)
}

func TestExtract_SparseGridBelowOccupancy(t *testing.T) {
	x := NewExtractor(DefaultConfig(), nil)
	elements := grid(50, 100, [][]string{
		{"a", "", "", "b"},
		{"", "c", "d", ""},
		{"e", "", "", "f"},
	})

	for _, c := range x.Candidates(elements) {
		assert.GreaterOrEqual(t, c.Confidence, 0.6)
	}
	assert.Empty(t, x.Extract(elements))
}

func TestValidate_OneRowNeverPromoted(t *testing.T) {
	x := NewExtractor(DefaultConfig(), nil)
	c := models.TableCandidate{
		Rows:        [][]string{{"a", "b", "c"}},
		Columns:     3,
		Confidence:  1.0,
		BoundingBox: models.Rect{Width: 100, Height: 20},
	}

	assert.Equal(t, "too_few_rows", x.Validate(c))

	elements := grid(50, 100, [][]string{{"a", "b", "c"}})
	assert.Empty(t, x.Extract(elements))
}

func TestValidate(t *testing.T) {
	x := NewExtractor(DefaultConfig(), nil)
	base := models.TableCandidate{
		Rows:        [][]string{{"a", "b"}, {"c", "d"}},
		Columns:     2,
		Confidence:  0.8,
		BoundingBox: models.Rect{Width: 200, Height: 40},
	}

	tests := []struct {
		name   string
		mutate func(*models.TableCandidate)
		want   string
	}{
		{"accepted", func(*models.TableCandidate) {}, ""},
		{"one column", func(c *models.TableCandidate) { c.Columns = 1 }, "too_few_columns"},
		{"low confidence", func(c *models.TableCandidate) { c.Confidence = 0.49 }, "low_confidence"},
		{"too wide", func(c *models.TableCandidate) { c.BoundingBox.Width = 401 }, "aspect_ratio"},
		{"too tall", func(c *models.TableCandidate) { c.BoundingBox.Height = 2001 }, "aspect_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Equal(t, tt.want, x.Validate(c))
		})
	}
}

func TestDetect_OverlapKeepsHigherConfidence(t *testing.T) {
	x := NewExtractor(DefaultConfig(), nil)
	elements := grid(50, 100, [][]string{
		{"h1", "h2", "h3"},
		{"a", "b", "c"},
		{"d", "e", "f"},
	})

	candidates := x.Candidates(elements)
	require.GreaterOrEqual(t, len(candidates), 2, "both strategies should propose the grid")

	accepted := x.Detect(elements)
	require.Len(t, accepted, 1)
	assert.Equal(t, StrategyGrid, accepted[0].Strategy)
}

func TestDetect_SeparateTablesKept(t *testing.T) {
	x := NewExtractor(DefaultConfig(), nil)
	first := grid(50, 100, [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}})
	second := grid(50, 400, [][]string{{"g", "h"}, {"i", "j"}, {"k", "l"}})

	accepted := x.Detect(append(second, first...))

	require.Len(t, accepted, 2)
	assert.Equal(t, "a", accepted[0].Rows[0][0])
	assert.Equal(t, "g", accepted[1].Rows[0][0])
}

func TestBuildMatrix_SpansAndMerges(t *testing.T) {
	m := BuildMatrix([][]Cell{
		{{Text: "Region"}, {Text: "Sales", GridSpan: 2}},
		{{Text: "North", VMerge: VMergeRestart}, {Text: "Q1"}, {Text: "Q2"}},
		{{VMerge: VMergeContinue}, {Text: "10"}, {Text: "12"}},
		{{Text: "South"}},
	})

	assert.Equal(t, [][]string{
		{"Region", "Sales", "Sales"},
		{"North", "Q1", "Q2"},
		{"North", "10", "12"},
		{"South", "", ""},
	}, m.Rows)
	assert.Equal(t, 4, m.NumRows())
	assert.Equal(t, 3, m.NumCols())
}

func TestMarkdown(t *testing.T) {
	m := &models.TableMatrix{Rows: [][]string{
		{"A", "B"},
		{"1", "x|y"},
		{"2"},
	}}

	assert.Equal(t, "| A | B |\n| --- | --- |\n| 1 | x\\|y |\n| 2 |  |", Markdown(m))
	assert.Equal(t, "", Markdown(&models.TableMatrix{}))
}

// Margin notes at distinct X positions dilute the row-first grid below the
// occupancy bar; only the column-first pass recovers the table.
func TestDetect_AlignmentRecoversTableBesideNotes(t *testing.T) {
	x := NewExtractor(DefaultConfig(), nil)
	cells := [][]string{{"Name", "Qty"}, {"Bolt", "4"}, {"Nut", "9"}, {"Washer", "12"}}
	var elements []models.LayoutElement
	for i, row := range cells {
		y := 100 + float64(i)*12
		elements = append(elements,
			models.LayoutElement{ID: fmt.Sprintf("r%dc0", i), X: 50, Y: y, Width: 60, Height: 10, Content: row[0], PageNumber: 1},
			models.LayoutElement{ID: fmt.Sprintf("r%dc1", i), X: 150, Y: y + 3, Width: 60, Height: 10, Content: row[1], PageNumber: 1},
			models.LayoutElement{ID: fmt.Sprintf("n%d", i), X: 400 + float64(i)*100, Y: y + 1, Width: 40, Height: 8, Content: fmt.Sprintf("note %d", i), PageNumber: 1},
		)
	}

	assert.Empty(t, x.gridCandidates(elements))
	candidates := x.Candidates(elements)
	require.NotEmpty(t, candidates)
	for _, c := range candidates {
		assert.Equal(t, StrategyAlignment, c.Strategy)
	}

	accepted := x.Detect(elements)
	require.Len(t, accepted, 1)
	assert.Equal(t, StrategyAlignment, accepted[0].Strategy)
	assert.Equal(t, 2, accepted[0].Columns)
	assert.Equal(t, cells, accepted[0].Rows)
	assert.InDelta(t, 1.0, accepted[0].Confidence, 1e-9)
}
