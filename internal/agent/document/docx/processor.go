// Package docx converts WordprocessingML documents into content blocks.
package docx

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/agent/document/ooxml"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

const MimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const documentPart = "word/document.xml"

type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{logger: log.Named("docx")}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == MimeType
}

func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.ContentBlock, error) {
	pkg, err := open(file)
	if err != nil {
		return nil, err
	}

	var doc documentXML
	if err := pkg.Decode(documentPart, &doc); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// styles and numbering are optional parts
	var styles stylesXML
	if err := pkg.Decode("word/styles.xml", &styles); err != nil && !errors.Is(err, ooxml.ErrPartNotFound) {
		p.logger.Warn("Ignoring unreadable styles", logger.Error(err))
	}
	var numbering numberingXML
	if err := pkg.Decode("word/numbering.xml", &numbering); err != nil && !errors.Is(err, ooxml.ErrPartNotFound) {
		p.logger.Warn("Ignoring unreadable numbering", logger.Error(err))
	}

	blocks, state := convert(doc.Body.Elements, newStyleSheet(&styles, &numbering), NewConversionState())
	p.logger.Debug("Converted document",
		logger.Int("elements", len(doc.Body.Elements)),
		logger.Int("blocks", len(blocks)),
		logger.Int("numberedLists", len(state.Counters)),
	)
	return blocks, nil
}

func (p *Processor) ExtractMetadata(ctx context.Context, file io.Reader) (models.DocumentMetadata, error) {
	pkg, err := open(file)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	return pkg.Metadata(models.Word, MimeType), nil
}

func (p *Processor) Close() error {
	return nil
}

func open(file io.Reader) (*ooxml.Package, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read docx: %w", err)
	}
	pkg, err := ooxml.Open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrUnsupportedFormat, err)
	}
	if !pkg.Has(documentPart) {
		return nil, fmt.Errorf("%w: %s missing", document.ErrUnsupportedFormat, documentPart)
	}
	return pkg, nil
}
