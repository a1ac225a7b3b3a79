package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

// Processor extracts text from standalone image uploads through the OCR
// pipeline.
type Processor struct {
	logger   logger.Logger
	pipeline *Pipeline
}

func NewProcessor(pipeline *Pipeline, log logger.Logger) (*Processor, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("ocr pipeline is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{logger: log.Named("image"), pipeline: pipeline}, nil
}

func (p *Processor) CanProcess(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/jpg", "image/png", "image/tiff", "image/bmp", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

// Process OCRs the image as a single page. A rejected page yields no blocks.
func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.ContentBlock, error) {
	imageData, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	dpi := EstimateDPI(img)
	p.logger.Debug("Decoded image",
		logger.String("format", format),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()),
		logger.Int("estimatedDpi", dpi),
	)

	page, err := p.pipeline.RecognizePage(ctx, 1, img, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize image: %w", err)
	}
	if page.Rejected {
		p.logger.Warn("Image text rejected by quality gate")
		return nil, nil
	}
	return Blocks([]PageResult{page}), nil
}

func (p *Processor) ExtractMetadata(ctx context.Context, file io.Reader) (models.DocumentMetadata, error) {
	imageData, err := io.ReadAll(file)
	if err != nil {
		return models.DocumentMetadata{}, fmt.Errorf("failed to read image data: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return models.DocumentMetadata{}, fmt.Errorf("failed to decode image: %w", err)
	}

	hash := sha256.Sum256(imageData)
	hashString := hex.EncodeToString(hash[:])

	return models.DocumentMetadata{
		ID:        hashString[:8],
		FileType:  models.Image,
		FileSize:  int64(len(imageData)),
		MimeType:  "image/" + format,
		Pages:     1,
		CreatedAt: time.Now(),
		Hash:      hashString,
		Extra: map[string]interface{}{
			"width":  cfg.Width,
			"height": cfg.Height,
			"format": format,
			"engine": p.pipeline.EngineName(),
		},
	}, nil
}

func (p *Processor) Close() error {
	return nil
}
