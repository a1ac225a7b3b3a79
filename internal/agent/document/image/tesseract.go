package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

type TesseractConfig struct {
	Languages []string `yaml:"languages"`
	// MinWordConfidence drops words below this confidence (0..100) from the mean.
	MinWordConfidence float64 `yaml:"minWordConfidence"`
	// UprightConfidence skips the remaining rotations once the upright
	// attempt reaches it (0..1).
	UprightConfidence float64           `yaml:"uprightConfidence"`
	Variables         map[string]string `yaml:"variables"`
}

func DefaultTesseractConfig() TesseractConfig {
	return TesseractConfig{
		Languages:         []string{"eng"},
		MinWordConfidence: 0,
		UprightConfidence: 0.8,
		Variables: map[string]string{
			"load_system_dawg":                     "1",
			"language_model_penalty_non_dict_word": "0.8",
		},
	}
}

// TesseractEngine runs Tesseract through gosseract. A client is created per
// call because gosseract clients are not safe for concurrent use.
type TesseractEngine struct {
	cfg    TesseractConfig
	logger logger.Logger
}

func NewTesseractEngine(cfg TesseractConfig, log logger.Logger) *TesseractEngine {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TesseractEngine{cfg: cfg, logger: log.Named("tesseract")}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (Recognition, error) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return Recognition{}, fmt.Errorf("failed to encode image: %w", err)
	}
	lang := opts.Language
	if lang == "" {
		lang = strings.Join(e.cfg.Languages, "+")
	}

	return runWithContext(ctx, func() (Recognition, error) {
		client := gosseract.NewClient()
		defer client.Close()

		if err := client.SetLanguage(lang); err != nil {
			return Recognition{}, fmt.Errorf("failed to set language: %w", err)
		}
		if err := client.SetPageSegMode(pageSegMode(opts.Mode)); err != nil {
			return Recognition{}, fmt.Errorf("failed to set page segmentation mode: %w", err)
		}
		for k, v := range e.cfg.Variables {
			if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
				e.logger.Warn("Failed to set tesseract variable",
					logger.String("variable", k),
					logger.Error(err),
				)
			}
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			return Recognition{}, fmt.Errorf("%w: failed to set image: %v", document.ErrCollaboratorUnavailable, err)
		}

		text, err := client.Text()
		if err != nil {
			return Recognition{}, fmt.Errorf("%w: failed to get text: %v", document.ErrCollaboratorUnavailable, err)
		}

		boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			e.logger.Warn("Failed to get word boxes", logger.Error(err))
			return Recognition{Text: text}, nil
		}
		return Recognition{Text: text, Confidence: e.meanConfidence(boxes)}, nil
	})
}

// DetectOrientation scores each rotation by mean word confidence and keeps
// the best one. The upright image is tried first and accepted outright when
// it is confident enough.
func (e *TesseractEngine) DetectOrientation(ctx context.Context, img image.Image) (int, error) {
	best, bestScore := 0, -1.0
	for _, angle := range []int{0, 90, 180, 270} {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		rec, err := e.Recognize(ctx, Rotate(img, angle), RecognizeOptions{Mode: ModeAuto})
		if err != nil {
			return 0, err
		}
		if rec.Confidence > bestScore {
			best, bestScore = angle, rec.Confidence
		}
		if angle == 0 && rec.Confidence >= e.cfg.UprightConfidence {
			return 0, nil
		}
	}
	return best, nil
}

func (e *TesseractEngine) meanConfidence(boxes []gosseract.BoundingBox) float64 {
	var sum float64
	var n int
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" || b.Confidence < e.cfg.MinWordConfidence {
			continue
		}
		sum += b.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) / 100
}

func pageSegMode(m PageMode) gosseract.PageSegMode {
	switch m {
	case ModeSingleBlock:
		return gosseract.PSM_SINGLE_BLOCK
	case ModeSparse:
		return gosseract.PSM_SPARSE_TEXT
	default:
		return gosseract.PSM_AUTO
	}
}
