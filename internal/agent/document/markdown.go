package document

import (
	"fmt"
	"strings"

	"github.com/feichai0017/document-chunker/internal/agent/document/table"
	"github.com/feichai0017/document-chunker/internal/models"
)

// RenderMarkdown joins blocks into one Markdown document. A table that does
// not directly follow a header gets a header line of its own so the
// splitter sees it as a separate section.
func RenderMarkdown(blocks []models.ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	prevHeader := false
	tables := 0

	for _, b := range blocks {
		switch b.Kind {
		case models.BlockHeader:
			text := strings.TrimSpace(b.Text)
			if text == "" {
				continue
			}
			parts = append(parts, strings.Repeat("#", max(b.Level, 1))+" "+text)
			prevHeader = true
			continue

		case models.BlockTable:
			md := table.Markdown(b.Table)
			if md == "" {
				continue
			}
			tables++
			if !prevHeader {
				parts = append(parts, tableTitle(tables, b.PageNumber))
			}
			parts = append(parts, md)

		default:
			text := strings.TrimSpace(b.Text)
			if text == "" {
				continue
			}
			parts = append(parts, text)
		}
		prevHeader = false
	}
	return strings.Join(parts, "\n\n")
}

// PlainText joins block text without Markdown syntax. Table cells are
// separated by spaces, one row per line.
func PlainText(blocks []models.ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Kind == models.BlockTable {
			if b.Table.IsEmpty() {
				continue
			}
			rows := make([]string, 0, b.Table.NumRows())
			for _, r := range b.Table.Rows {
				rows = append(rows, strings.Join(strings.Fields(strings.Join(r, " ")), " "))
			}
			parts = append(parts, strings.Join(rows, "\n"))
			continue
		}
		if text := strings.TrimSpace(b.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func tableTitle(n, page int) string {
	if page > 0 {
		return fmt.Sprintf("### Table %d (page %d)", n, page)
	}
	return fmt.Sprintf("### Table %d", n)
}
