// Package commands implements the chunker CLI: extract and split documents
// locally without the queue or object storage.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/feichai0017/document-chunker/config"
	"github.com/feichai0017/document-chunker/internal/agent"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/internal/service/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

type globalOptions struct {
	configPath string
	logLevel   string
	ocrEngine  string
	embedder   string
	pretty     bool
}

type output struct {
	Count  int            `json:"count"`
	Chunks []models.Chunk `json:"chunks"`
}

func NewRootCmd() *cobra.Command {
	o := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "chunker",
		Short: "Extract documents and split them into retrieval chunks",
		Long: `chunker extracts PDF, Office, image, HTML, Markdown and text documents
and splits them into chunks for retrieval. Chunks are printed as JSON.

Examples:
  chunker extract report.pdf
  chunker extract https://example.com/handbook.docx --title Handbook
  cat notes.md | chunker split-md --title Notes
  chunker split-text transcript.txt --pretty`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&o.logLevel, "log-level", "warn", "log level written to stderr")
	flags.StringVar(&o.ocrEngine, "ocr-engine", "", "override OCR engine: tesseract, textract or none")
	flags.StringVar(&o.embedder, "embedder", "", "override embedding provider: hashing, openai or ollama")
	flags.BoolVar(&o.pretty, "pretty", false, "indent JSON output")

	cmd.AddCommand(newExtractCmd(o), newSplitMarkdownCmd(o), newSplitTextCmd(o))
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

// setup loads the configuration, applies flag overrides and builds a
// pipeline. The returned func releases it.
func (o *globalOptions) setup(ctx context.Context) (*agent.Pipeline, *config.Config, func(), error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.ocrEngine != "" {
		cfg.OCR.Engine = o.ocrEngine
	}
	if o.embedder != "" {
		cfg.Embedding.Provider = o.embedder
	}

	log, err := logger.NewLogger(logger.WithConfig(logger.Config{
		Level:       o.logLevel,
		Encoding:    "console",
		OutputPaths: []string{"stderr"},
	}))
	if err != nil {
		return nil, nil, nil, err
	}

	p, closers, err := document.NewPipeline(ctx, cfg, log, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		_ = log.Sync()
	}
	return p, cfg, release, nil
}

func (o *globalOptions) write(w io.Writer, chunks []models.Chunk) error {
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	enc := json.NewEncoder(w)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(output{Count: len(chunks), Chunks: chunks}); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
