package document

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/document-chunker/internal/models"
)

func TestRenderMarkdown(t *testing.T) {
	matrix := &models.TableMatrix{Rows: [][]string{{"Name", "Qty"}, {"Bolt", "4"}}}
	blocks := []models.ContentBlock{
		models.NewHeaderBlock("Inventory", 2, 1, 0.9),
		models.NewTableBlock(matrix, 1, 0.8),
		models.NewTextBlock("  Counted on Monday.  ", 1, 0.9),
		models.NewTableBlock(matrix, 2, 0.8),
		models.NewTextBlock("   ", 2, 0.9),
		models.NewListBlock("- one\n- two", 2, 0.9),
	}

	want := "## Inventory\n\n" +
		"| Name | Qty |\n| --- | --- |\n| Bolt | 4 |\n\n" +
		"Counted on Monday.\n\n" +
		"### Table 2 (page 2)\n\n" +
		"| Name | Qty |\n| --- | --- |\n| Bolt | 4 |\n\n" +
		"- one\n- two"
	assert.Equal(t, want, RenderMarkdown(blocks))
}

func TestPlainText(t *testing.T) {
	blocks := []models.ContentBlock{
		models.NewHeaderBlock("Inventory", 1, 1, 0.9),
		models.NewTableBlock(&models.TableMatrix{Rows: [][]string{{"Name", " Qty"}, {"Bolt", ""}}}, 1, 0.8),
		models.NewTableBlock(&models.TableMatrix{Rows: [][]string{{"", ""}}}, 1, 0.8),
	}

	assert.Equal(t, "Inventory\n\nName Qty\nBolt", PlainText(blocks))
}
