package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Splitter.ChunkSize)
	assert.Equal(t, 20, cfg.OCR.Page.MaxPages)
	assert.Equal(t, 50, cfg.Pipeline.Sheets.MaxRows)
	assert.Equal(t, 0.30, cfg.Quality.MinDensity)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
ocr:
  engine: none
  page:
    maxPages: 5
splitter:
  minChunkSize: 800
pipeline:
  embeddingTimeout: 45s
  sheets:
    maxRows: 30
embedding:
  provider: ollama
`), 0o644))
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.OCR.Page.MaxPages)
	assert.Equal(t, 300, cfg.OCR.Page.DPI)
	assert.Equal(t, 800, cfg.Splitter.MinChunkSize)
	assert.Equal(t, 2000, cfg.Splitter.MaxMergedSize)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.EmbeddingTimeout)
	assert.Equal(t, 30, cfg.Pipeline.Sheets.MaxRows)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.True(t, cfg.Storage.Minio.UseSSL)

	f := cfg.Factory()
	assert.Equal(t, "none", f.OCREngine)
	assert.Equal(t, 5, f.OCR.MaxPages)
	assert.Equal(t, 45*time.Second, cfg.Options().EmbeddingTimeout)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not, a, map"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestTextractEngine(t *testing.T) {
	assert.Nil(t, TextractConfig{}.Engine())
	e := TextractConfig{Region: "eu-west-1", MinConfidence: 80}.Engine()
	require.NotNil(t, e)
	assert.Equal(t, "eu-west-1", e.Region)
	assert.Equal(t, float32(80), e.MinConfidence)
}
