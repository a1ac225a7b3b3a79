package docx

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

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func buildDocx(t *testing.T, body string, extra map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		documentPart:          `<?xml version="1.0"?><w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`,
	}
	for k, v := range extra {
		parts[k] = v
	}
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func para(style, text string) string {
	props := ""
	if style != "" {
		props = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return `<w:p>` + props + `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func listPara(numID, ilvl, text string) string {
	return `<w:p><w:pPr><w:pStyle w:val="ListParagraph"/><w:numPr><w:ilvl w:val="` + ilvl + `"/><w:numId w:val="` + numID + `"/></w:numPr></w:pPr>` +
		`<w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func cell(props, text string) string {
	return `<w:tc><w:tcPr>` + props + `</w:tcPr>` + para("", text) + `</w:tc>`
}

func process(t *testing.T, data []byte) []models.ContentBlock {
	t.Helper()
	blocks, err := NewProcessor(nil).Process(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	return blocks
}

func TestProcess_HeadingWithBoldItalicRuns(t *testing.T) {
	body := `<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr>` +
		`<w:r><w:rPr><w:b/><w:i/></w:rPr><w:t xml:space="preserve">Quarterly </w:t></w:r>` +
		`<w:r><w:rPr><w:b/><w:i/></w:rPr><w:t>Results</w:t></w:r></w:p>` +
		para("", "Revenue grew in every region.")

	blocks := process(t, buildDocx(t, body, nil))
	require.Len(t, blocks, 2)
	assert.Equal(t, models.BlockHeader, blocks[0].Kind)
	assert.Equal(t, 2, blocks[0].Level)
	assert.Equal(t, "**_Quarterly Results_**", blocks[0].Text)

	md := document.RenderMarkdown(blocks)
	assert.True(t, strings.HasPrefix(md, "## **_Quarterly Results_**"), md)
}

func TestProcess_StyleNamesFromStylesPart(t *testing.T) {
	styles := `<w:styles ` + wordNS + `>` +
		`<w:style w:type="paragraph" w:styleId="Berschrift1"><w:name w:val="heading 1"/></w:style>` +
		`<w:style w:type="paragraph" w:styleId="Custom"><w:name w:val="Chapter"/><w:pPr><w:outlineLvl w:val="2"/></w:pPr></w:style>` +
		`</w:styles>`
	body := para("Berschrift1", "Overview") + para("Custom", "Background")

	blocks := process(t, buildDocx(t, body, map[string]string{"word/styles.xml": styles}))
	require.Len(t, blocks, 2)
	assert.Equal(t, 1, blocks[0].Level)
	assert.Equal(t, 3, blocks[1].Level)
}

func TestProcess_EmphasisNeedsEveryRun(t *testing.T) {
	body := `<w:p><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">Bold </w:t></w:r>` +
		`<w:r><w:t>plain</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:i/></w:rPr><w:t>Slanted</w:t></w:r></w:p>` +
		`<w:p><w:r><w:rPr><w:b w:val="0"/></w:rPr><w:t>Unbolded</w:t></w:r></w:p>`

	blocks := process(t, buildDocx(t, body, nil))
	require.Len(t, blocks, 3)
	assert.Equal(t, "Bold plain", blocks[0].Text)
	assert.Equal(t, "_Slanted_", blocks[1].Text)
	assert.Equal(t, "Unbolded", blocks[2].Text)
}

const numberingPart = `<w:numbering ` + wordNS + `>` +
	`<w:abstractNum w:abstractNumId="1"><w:lvl w:ilvl="0"><w:numFmt w:val="decimal"/></w:lvl><w:lvl w:ilvl="1"><w:numFmt w:val="lowerLetter"/></w:lvl></w:abstractNum>` +
	`<w:abstractNum w:abstractNumId="2"><w:lvl w:ilvl="0"><w:numFmt w:val="bullet"/></w:lvl></w:abstractNum>` +
	`<w:num w:numId="7"><w:abstractNumId w:val="1"/></w:num>` +
	`<w:num w:numId="8"><w:abstractNumId w:val="2"/></w:num>` +
	`</w:numbering>`

func TestProcess_OrderedListNumbering(t *testing.T) {
	body := listPara("7", "0", "First") +
		listPara("7", "1", "Nested") +
		listPara("7", "0", "Second") +
		para("", "Between the lists.") +
		listPara("7", "0", "Third") +
		listPara("8", "0", "Bullet")

	blocks := process(t, buildDocx(t, body, map[string]string{"word/numbering.xml": numberingPart}))
	require.Len(t, blocks, 3)
	assert.Equal(t, models.BlockList, blocks[0].Kind)
	assert.Equal(t, "1. First\n  1. Nested\n2. Second", blocks[0].Text)
	assert.Equal(t, "Between the lists.", blocks[1].Text)
	assert.Equal(t, "3. Third\n- Bullet", blocks[2].Text)
}

func TestProcess_NumberingDoesNotLeakAcrossDocuments(t *testing.T) {
	data := buildDocx(t, listPara("7", "0", "Only"), map[string]string{"word/numbering.xml": numberingPart})
	p := NewProcessor(nil)

	for range 2 {
		blocks, err := p.Process(context.Background(), bytes.NewReader(data))
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, "1. Only", blocks[0].Text)
	}
}

func TestConversionState_ResetsDeeperLevels(t *testing.T) {
	s := NewConversionState()
	s, n := s.next("1", 0)
	assert.Equal(t, 1, n)
	s, n = s.next("1", 1)
	assert.Equal(t, 1, n)
	s, n = s.next("1", 1)
	assert.Equal(t, 2, n)
	s, _ = s.next("1", 0)
	_, n = s.next("1", 1)
	assert.Equal(t, 1, n)
}

func TestProcess_SingleColumnTableBecomesProse(t *testing.T) {
	body := `<w:tbl>` +
		`<w:tr>` + cell("", "Notes") + `</w:tr>` +
		`<w:tr>` + cell("", "The first note.") + `</w:tr>` +
		`<w:tr>` + cell("", "The second note.") + `</w:tr>` +
		`</w:tbl>`

	blocks := process(t, buildDocx(t, body, nil))
	require.Len(t, blocks, 3)
	assert.Equal(t, models.BlockHeader, blocks[0].Kind)
	assert.Equal(t, "Notes", blocks[0].Text)
	assert.Equal(t, "The first note.", blocks[1].Text)
	assert.Equal(t, "The second note.", blocks[2].Text)
}

func TestProcess_MergedCells(t *testing.T) {
	body := `<w:tbl>` +
		`<w:tr>` + cell(`<w:gridSpan w:val="2"/>`, "Region") + `</w:tr>` +
		`<w:tr>` + cell(`<w:vMerge w:val="restart"/>`, "North") + cell("", "12") + `</w:tr>` +
		`<w:tr>` + cell(`<w:vMerge/>`, "") + cell("", "15") + `</w:tr>` +
		`</w:tbl>`

	blocks := process(t, buildDocx(t, body, nil))
	require.Len(t, blocks, 1)
	require.Equal(t, models.BlockTable, blocks[0].Kind)
	assert.Equal(t, [][]string{{"Region", "Region"}, {"North", "12"}, {"North", "15"}}, blocks[0].Table.Rows)
}

func TestProcess_QuoteCodeAndDocumentOrder(t *testing.T) {
	body := para("Quote", "To be or not to be") +
		para("Code", "func main() {") +
		para("Code", "}") +
		`<w:sdt><w:sdtPr/><w:sdtContent>` + para("", "Inside a content control.") + `</w:sdtContent></w:sdt>` +
		`<w:p><w:hyperlink><w:r><w:t>Linked text</w:t></w:r></w:hyperlink></w:p>` +
		`<w:sectPr/>`

	blocks := process(t, buildDocx(t, body, nil))
	require.Len(t, blocks, 4)
	assert.Equal(t, "> To be or not to be", blocks[0].Text)
	assert.Equal(t, "```\nfunc main() {\n}\n```", blocks[1].Text)
	assert.Equal(t, "Inside a content control.", blocks[2].Text)
	assert.Equal(t, "Linked text", blocks[3].Text)
}

func TestProcess_RejectsNonZip(t *testing.T) {
	_, err := NewProcessor(nil).Process(context.Background(), strings.NewReader("not a zip"))
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)
}

func TestExtractMetadata(t *testing.T) {
	core := `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">` +
		`<dc:title>Annual Plan</dc:title><dc:creator>Operations</dc:creator></cp:coreProperties>`
	app := `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties"><Pages>3</Pages></Properties>`
	data := buildDocx(t, para("", "Body"), map[string]string{"docProps/core.xml": core, "docProps/app.xml": app})

	meta, err := NewProcessor(nil).ExtractMetadata(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "Annual Plan", meta.Title)
	assert.Equal(t, "Operations", meta.Author)
	assert.Equal(t, 3, meta.Pages)
	assert.Equal(t, models.Word, meta.FileType)
	assert.Equal(t, int64(len(data)), meta.FileSize)
}
