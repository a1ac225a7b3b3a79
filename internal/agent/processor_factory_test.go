package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/agent/document/docx"
	"github.com/feichai0017/document-chunker/internal/agent/document/pptx"
	"github.com/feichai0017/document-chunker/internal/agent/document/xlsx"
	"github.com/feichai0017/document-chunker/internal/models"
)

func TestGetProcessor_ExtensionsAndMIME(t *testing.T) {
	pdf := &fakeProcessor{}
	f := NewProcessorFactory(nil)
	f.Register(pdf, mimePDF)

	for _, ft := range []string{"pdf", ".PDF", "application/pdf", "Application/PDF; charset=binary"} {
		p, err := f.GetProcessor(ft)
		require.NoError(t, err, ft)
		assert.Same(t, pdf, p)
	}

	_, err := f.GetProcessor("doc")
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)
	_, err = f.GetProcessor("")
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)
}

func TestResolve_SniffsContent(t *testing.T) {
	plain := &fakeProcessor{}
	f := NewProcessorFactory(nil)
	f.Register(plain, "text/plain")

	mime, p, err := f.Resolve("bin", []byte("just some words"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime)
	assert.Same(t, plain, p)
}

func TestFactory_CloseOncePerProcessor(t *testing.T) {
	shared := &fakeProcessor{}
	f := NewProcessorFactory(nil)
	f.Register(shared, "image/png", "image/jpeg")
	require.NoError(t, f.Close())
	assert.Equal(t, 1, shared.closed)
}

func TestNewDefaultFactory(t *testing.T) {
	f, err := NewDefaultFactory(context.Background(), FactoryConfig{OCREngine: EngineNone}, nil)
	require.NoError(t, err)

	for _, ft := range []string{"pdf", "docx", "pptx", "xlsx", "txt", "md", "html"} {
		_, err := f.GetProcessor(ft)
		assert.NoError(t, err, ft)
	}
	_, err = f.GetProcessor("png")
	assert.ErrorIs(t, err, document.ErrUnsupportedFormat)

	_, err = NewDefaultFactory(context.Background(), FactoryConfig{OCREngine: EngineTextract}, nil)
	assert.ErrorIs(t, err, document.ErrCollaboratorUnavailable)
}

func TestFileTypeOf(t *testing.T) {
	assert.Equal(t, models.PDF, FileTypeOf(mimePDF))
	assert.Equal(t, models.Word, FileTypeOf(docx.MimeType))
	assert.Equal(t, models.Slides, FileTypeOf(pptx.MimeType))
	assert.Equal(t, models.Sheet, FileTypeOf(xlsx.MimeType))
	assert.Equal(t, models.Image, FileTypeOf("image/webp"))
	assert.Equal(t, models.Markdown, FileTypeOf("text/markdown"))
	assert.Equal(t, models.Text, FileTypeOf("text/plain"))
}
