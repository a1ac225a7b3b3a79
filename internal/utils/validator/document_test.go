package validator

import (
	"bytes"
	"image"
	"image/png"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func codes(r *ValidationResult) []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Code)
	}
	return out
}

func TestValidate_Accepts(t *testing.T) {
	v := NewDocumentValidator(nil, nil)

	cases := map[string][]byte{
		"notes.md":   []byte("# Title\n\nSome text."),
		"notes.txt":  []byte("plain words"),
		"page.html":  []byte("<html><body><p>hi</p></body></html>"),
		"scan.png":   pngOf(t, 64, 48),
		"report.pdf": []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF\n"),
	}
	for name, data := range cases {
		r := v.Validate(name, int64(len(data)), data)
		assert.True(t, r.IsValid, "%s: %v", name, r.Errors)
		assert.Len(t, r.FileInfo.Hash, 64)
	}
}

func TestValidate_Rejects(t *testing.T) {
	v := NewDocumentValidator(nil, nil)

	r := v.Validate("tool.exe", 2, []byte("MZ"))
	assert.False(t, r.IsValid)
	assert.Equal(t, []string{CodeInvalidFileType}, codes(r))

	r = v.Validate("fake.pdf", 5, []byte("hello"))
	assert.False(t, r.IsValid)
	assert.Equal(t, []string{CodeInvalidMimeType, CodeCorruptFile}, codes(r))

	r = v.Validate("cut.pdf", 8, []byte("%PDF-1.4"))
	assert.Equal(t, []string{CodeCorruptFile}, codes(r))

	small := pngOf(t, 4, 4)
	r = v.Validate("icon.png", int64(len(small)), small)
	assert.Equal(t, []string{CodeImageDimensions}, codes(r))
	assert.Equal(t, 4, r.FileInfo.Metadata["width"])
}

func TestValidate_TooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFileSize = 4
	v := NewDocumentValidator(nil, cfg)

	r := v.Validate("notes.txt", 10, []byte("0123456789"))
	assert.False(t, r.IsValid)
	assert.Equal(t, []string{CodeFileTooLarge}, codes(r))
}

func TestValidateFiles_KeepsOrder(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range map[string]string{"a.txt": "first file", "b.exe": "MZ"} {
		w, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	files := form.File["files"]
	require.Len(t, files, 2)

	results, err := NewDocumentValidator(nil, nil).ValidateFiles(files)
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, files[i].Filename, r.FileInfo.Filename)
		assert.Equal(t, r.FileInfo.Extension == ".txt", r.IsValid)
	}
}

func TestAllowed(t *testing.T) {
	v := NewDocumentValidator(nil, nil)
	assert.True(t, v.Allowed("Deck.PPTX"))
	assert.False(t, v.Allowed("legacy.doc"))
}
