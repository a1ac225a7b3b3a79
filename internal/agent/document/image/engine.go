package image

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/models"
)

// PageMode selects how the engine segments a page.
type PageMode int

const (
	ModeAuto PageMode = iota
	ModeSingleBlock
	ModeSparse
)

type RecognizeOptions struct {
	Language string
	Mode     PageMode
}

// Recognition is the engine output for one image.
type Recognition struct {
	Text string
	// Confidence is the mean word confidence scaled to 0..1.
	Confidence float64
	// Tables holds tables the engine recognized natively, if it supports that.
	Tables []*models.TableMatrix
}

// Engine is an OCR backend.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (Recognition, error)
	// DetectOrientation returns the counter-clockwise rotation in degrees,
	// one of 0, 90, 180 or 270, that makes the text upright.
	DetectOrientation(ctx context.Context, img image.Image) (int, error)
}

// Rotate turns img counter-clockwise by a multiple of 90 degrees.
func Rotate(img image.Image, angle int) image.Image {
	switch ((angle % 360) + 360) % 360 {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return img
	}
}

// runWithContext runs a blocking engine call and gives up when ctx ends
// first. The call itself keeps running until the engine returns.
func runWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", document.ErrCollaboratorUnavailable, ctx.Err())
	}
}
