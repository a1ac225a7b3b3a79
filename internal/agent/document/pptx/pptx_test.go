package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/models"
)

const slideNS = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`

func buildPptx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func shape(placeholder string, paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sp><p:nvSpPr><p:nvPr>`)
	if placeholder != "" {
		b.WriteString(`<p:ph type="` + placeholder + `"/>`)
	}
	b.WriteString(`</p:nvPr></p:nvSpPr><p:txBody>`)
	for _, p := range paragraphs {
		b.WriteString(`<a:p><a:r><a:t>` + p + `</a:t></a:r></a:p>`)
	}
	b.WriteString(`</p:txBody></p:sp>`)
	return b.String()
}

func tableFrame(rows ...[]string) string {
	var b strings.Builder
	b.WriteString(`<p:graphicFrame><a:graphic><a:graphicData><a:tbl>`)
	for _, r := range rows {
		b.WriteString(`<a:tr>`)
		for _, c := range r {
			b.WriteString(`<a:tc><a:txBody><a:p><a:r><a:t>` + c + `</a:t></a:r></a:p></a:txBody></a:tc>`)
		}
		b.WriteString(`</a:tr>`)
	}
	b.WriteString(`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`)
	return b.String()
}

func slide(content string) string {
	return `<p:sld ` + slideNS + `><p:cSld><p:spTree>` + content + `</p:spTree></p:cSld></p:sld>`
}

func deck(t *testing.T) []byte {
	return buildPptx(t, map[string]string{
		"ppt/presentation.xml": `<p:presentation ` + slideNS + ` xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
			`<p:sldIdLst><p:sldId id="256" r:id="rId3"/><p:sldId id="257" r:id="rId2"/></p:sldIdLst></p:presentation>`,
		"ppt/_rels/presentation.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId2" Target="slides/slide1.xml"/><Relationship Id="rId3" Target="slides/slide2.xml"/></Relationships>`,
		"ppt/slides/slide2.xml": slide(
			shape("title", "Roadmap") +
				shape("body", "Launch beta", "Collect feedback") +
				shape("ftr", "Confidential") +
				shape("sldNum", "1"),
		),
		"ppt/slides/slide1.xml": slide(
			shape("title", "Pricing") +
				tableFrame([]string{"Plan", "Price"}, []string{"Basic", "10"}),
		),
		"docProps/app.xml": `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties"><Slides>2</Slides></Properties>`,
	})
}

func TestProcess_SlidesInPresentationOrder(t *testing.T) {
	blocks, err := NewProcessor(nil).Process(context.Background(), bytes.NewReader(deck(t)))
	require.NoError(t, err)
	require.Len(t, blocks, 4)

	assert.Equal(t, models.BlockHeader, blocks[0].Kind)
	assert.Equal(t, 2, blocks[0].Level)
	assert.Equal(t, "Slide 1: Roadmap", blocks[0].Text)
	assert.Equal(t, 1, blocks[0].PageNumber)
	assert.Equal(t, models.BlockList, blocks[1].Kind)
	assert.Equal(t, "- Launch beta\n- Collect feedback", blocks[1].Text)

	assert.Equal(t, "Slide 2: Pricing", blocks[2].Text)
	assert.Equal(t, "- Plan | Price\n- Basic | 10", blocks[3].Text)
	assert.Equal(t, 2, blocks[3].PageNumber)

	md := document.RenderMarkdown(blocks)
	assert.NotContains(t, md, "Confidential")
}

func TestProcess_FallsBackToPartNumbers(t *testing.T) {
	data := buildPptx(t, map[string]string{
		"ppt/slides/slide10.xml": slide(shape("", "Closing", "Thank you")),
		"ppt/slides/slide2.xml":  slide(shape("", "Opening", "Welcome")),
	})

	blocks, err := NewProcessor(nil).Process(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, blocks, 4)
	assert.Equal(t, "Slide 1: Opening", blocks[0].Text)
	assert.Equal(t, "Welcome", blocks[1].Text)
	assert.Equal(t, models.BlockText, blocks[1].Kind)
	assert.Equal(t, "Slide 2: Closing", blocks[2].Text)
}

func TestProcess_RejectsNonZip(t *testing.T) {
	_, err := NewProcessor(nil).Process(context.Background(), strings.NewReader("plain text"))
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)
}

func TestExtractMetadata(t *testing.T) {
	meta, err := NewProcessor(nil).ExtractMetadata(context.Background(), bytes.NewReader(deck(t)))
	require.NoError(t, err)
	assert.Equal(t, models.Slides, meta.FileType)
	assert.Equal(t, 2, meta.Pages)
	assert.Equal(t, MimeType, meta.MimeType)
}

func TestSegmentSlides(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []Slide
	}{
		{
			name:    "blank lines",
			content: "Intro\nHello there\n\n\nAgenda\nFirst item",
			want: []Slide{
				{Number: 1, Title: "Intro", Body: []string{"Hello there"}},
				{Number: 2, Title: "Agenda", Body: []string{"First item"}},
			},
		},
		{
			name:    "numeric markers",
			content: "Slide 1\nIntro\nWelcome all\nSlide 2\nAgenda\nItem one",
			want: []Slide{
				{Number: 1, Title: "Intro", Body: []string{"Welcome all"}},
				{Number: 2, Title: "Agenda", Body: []string{"Item one"}},
			},
		},
		{
			name:    "title lines",
			content: "Overview\nthe system ingests files.\nArchitecture\nthree services talk to each other.",
			want: []Slide{
				{Number: 1, Title: "Overview", Body: []string{"the system ingests files."}},
				{Number: 2, Title: "Architecture", Body: []string{"three services talk to each other."}},
			},
		},
		{
			name:    "single slide",
			content: "just one line of text here.",
			want:    []Slide{{Number: 1, Body: []string{"just one line of text here."}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SegmentSlides(tt.content))
		})
	}

	assert.Nil(t, SegmentSlides("  \n "))
}
