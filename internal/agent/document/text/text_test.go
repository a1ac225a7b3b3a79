package text

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/internal/models"
)

func TestStructure(t *testing.T) {
	input := "INTRODUCTION\n\nThe report covers the first\nquarter of the year and its re-\nsults.\n\n- first point\n- second point\n\n## Details\n\n1. step one\n2. step two\n\nClosing words."

	blocks := Structure(input, 3, 0.9)

	require.Len(t, blocks, 6)
	assert.Equal(t, models.BlockHeader, blocks[0].Kind)
	assert.Equal(t, 1, blocks[0].Level)
	assert.Equal(t, "INTRODUCTION", blocks[0].Text)

	assert.Equal(t, models.BlockText, blocks[1].Kind)
	assert.Equal(t, "The report covers the first quarter of the year and its results.", blocks[1].Text)

	assert.Equal(t, models.BlockList, blocks[2].Kind)
	assert.Equal(t, "- first point\n- second point", blocks[2].Text)

	assert.Equal(t, models.BlockHeader, blocks[3].Kind)
	assert.Equal(t, 2, blocks[3].Level)
	assert.Equal(t, "Details", blocks[3].Text)

	assert.Equal(t, "1. step one\n2. step two", blocks[4].Text)
	assert.Equal(t, models.BlockText, blocks[5].Kind)

	for _, b := range blocks {
		assert.Equal(t, 3, b.PageNumber)
		assert.Equal(t, 0.9, b.Confidence)
	}
}

func TestStructure_LastShortParagraphStaysText(t *testing.T) {
	blocks := Structure("Some body text here.\n\nSigned Management", 1, 0.9)
	require.Len(t, blocks, 2)
	assert.Equal(t, models.BlockText, blocks[1].Kind)
}

func TestIsHeadingLine(t *testing.T) {
	assert.True(t, IsHeadingLine("Quarterly Results"))
	assert.True(t, IsHeadingLine("3.2 Methods"))
	assert.False(t, IsHeadingLine("This line ends like a sentence."))
	assert.False(t, IsHeadingLine("lowercase start"))
	assert.False(t, IsHeadingLine(strings.Repeat("Long ", 30)))
}

func TestMarkdownBlocks_IgnoresHeadersInFences(t *testing.T) {
	md := "# Title\n\nIntro\n\n```\n# not a header\n```\n\n## Next\nbody"

	blocks := MarkdownBlocks(md)

	require.Len(t, blocks, 4)
	assert.Equal(t, "Title", blocks[0].Text)
	assert.Contains(t, blocks[1].Text, "# not a header")
	assert.Equal(t, "Next", blocks[2].Text)
	assert.Equal(t, 2, blocks[2].Level)
	assert.Equal(t, "body", blocks[3].Text)
}

func TestProcessor_HTML(t *testing.T) {
	p := NewProcessor(MimeHTML, nil)
	html := `<html><body><h1>Guide</h1><p>Hello <b>world</b></p></body></html>`

	blocks, err := p.Process(context.Background(), strings.NewReader(html))

	require.NoError(t, err)
	require.NotEmpty(t, blocks)
	assert.Equal(t, models.BlockHeader, blocks[0].Kind)
	assert.Equal(t, "Guide", blocks[0].Text)
	assert.Contains(t, blocks[1].Text, "**world**")
}

func TestDecode(t *testing.T) {
	assert.Equal(t, "café", Decode([]byte{'c', 'a', 'f', 0xE9}))
	assert.Equal(t, "hello", Decode([]byte("\uFEFFhello")))
}

func TestProcessor_ExtractMetadata(t *testing.T) {
	p := NewProcessor(MimeMarkdown, nil)
	meta, err := p.ExtractMetadata(context.Background(), strings.NewReader("# Manual\n\ntext"))
	require.NoError(t, err)
	assert.Equal(t, "Manual", meta.Title)
	assert.Equal(t, models.Markdown, meta.FileType)
}
