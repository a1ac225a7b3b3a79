package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/internal/models"
)

func el(content string, x, y float64) models.LayoutElement {
	return models.LayoutElement{Content: content, X: x, Y: y, Width: 40, Height: 10, FontSize: 10, PageNumber: 1}
}

func TestExtract_EmptyPage(t *testing.T) {
	page := Extract(nil, 612, 792)

	require.NotNil(t, page)
	assert.Empty(t, page.Elements)
	assert.Empty(t, page.Columns)
	assert.Nil(t, page.HeaderRegion)
	assert.Nil(t, page.FooterRegion)
	assert.Nil(t, page.ContentRegion)
}

func TestExtract_ReadingOrderWithLineTolerance(t *testing.T) {
	elements := []models.LayoutElement{
		el("world", 100, 203),
		el("second", 50, 230),
		el("hello", 50, 200),
	}

	page := Extract(elements, 612, 792)

	var got []string
	for _, e := range page.Elements {
		got = append(got, e.Content)
	}
	assert.Equal(t, []string{"hello", "world", "second"}, got)
}

func TestExtract_LinesBeyondToleranceSplit(t *testing.T) {
	lines := Lines([]models.LayoutElement{
		el("a", 10, 100),
		el("b", 10, 106),
	})
	require.Len(t, lines, 2)
	assert.Equal(t, "a", LineText(lines[0]))
	assert.Equal(t, "b", LineText(lines[1]))
}

func TestExtract_SingleColumnWhenNoGap(t *testing.T) {
	elements := []models.LayoutElement{
		el("one", 50, 200),
		el("two", 55, 220),
		el("three", 60, 240),
	}

	page := Extract(elements, 612, 792)

	require.Len(t, page.Columns, 1)
	assert.Equal(t, 0.0, page.Columns[0].MinX)
	assert.Equal(t, 612.0, page.Columns[0].MaxX)
	assert.Len(t, page.Columns[0].Elements, 3)
}

func TestExtract_TwoColumns(t *testing.T) {
	elements := []models.LayoutElement{
		el("left 1", 50, 200),
		el("right 1", 320, 200),
		el("left 2", 52, 220),
		el("right 2", 322, 220),
	}

	page := Extract(elements, 612, 792)

	require.Len(t, page.Columns, 2)
	assert.Len(t, page.Columns[0].Elements, 2)
	assert.Len(t, page.Columns[1].Elements, 2)
	assert.Equal(t, 320.0, page.Columns[1].MinX)
	assert.Equal(t, "left 1", page.Columns[0].Elements[0].Content)
	assert.Equal(t, "right 2", page.Columns[1].Elements[1].Content)
}

func TestExtract_Regions(t *testing.T) {
	tests := []struct {
		name       string
		elements   []models.LayoutElement
		wantHeader bool
		wantFooter bool
	}{
		{
			name:     "body only",
			elements: []models.LayoutElement{el("body", 50, 300)},
		},
		{
			name:       "header band",
			elements:   []models.LayoutElement{el("title", 50, 40), el("body", 50, 300)},
			wantHeader: true,
		},
		{
			name:       "footer band",
			elements:   []models.LayoutElement{el("body", 50, 300), el("7", 300, 760)},
			wantFooter: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := Extract(tt.elements, 612, 792)
			assert.Equal(t, tt.wantHeader, page.HeaderRegion != nil)
			assert.Equal(t, tt.wantFooter, page.FooterRegion != nil)
			require.NotNil(t, page.ContentRegion)
			assert.Equal(t, "body", page.ContentRegion.Elements[0].Content)
		})
	}
}

func TestExtract_DerivesSizeFromElements(t *testing.T) {
	page := Extract([]models.LayoutElement{el("x", 10, 10)}, 0, 0)
	assert.Equal(t, 50.0, page.Width)
	assert.Equal(t, 20.0, page.Height)
}
