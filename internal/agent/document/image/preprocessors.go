package image

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/disintegration/imaging"
)

// ImagePreprocessor is one step of the preprocessing chain.
type ImagePreprocessor interface {
	Name() string
	Process(img image.Image) (image.Image, error)
}

type PreprocessConfig struct {
	// A page is left untouched when all three skip thresholds are exceeded.
	SkipMinDPI     int     `yaml:"skipMinDpi"`
	SkipMinEntropy float64 `yaml:"skipMinEntropy"`
	SkipMinStdDev  float64 `yaml:"skipMinStdDev"`

	Contrast     float64 `yaml:"contrast"`
	SharpenSigma float64 `yaml:"sharpenSigma"`
	MedianSize   int     `yaml:"medianSize"`
}

func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		SkipMinDPI:     300,
		SkipMinEntropy: 6.5,
		SkipMinStdDev:  40,
		Contrast:       20,
		SharpenSigma:   0.5,
		MedianSize:     3,
	}
}

// Chain builds the standard chain: grayscale, median, contrast, sharpen.
func (c PreprocessConfig) Chain() []ImagePreprocessor {
	return []ImagePreprocessor{
		NewGrayscaleProcessor(),
		NewMedianProcessor(c.MedianSize),
		NewContrastProcessor(c.Contrast),
		NewSharpenProcessor(c.SharpenSigma),
	}
}

// ShouldPreprocess reports whether a page needs preprocessing. Clean high
// resolution scans only lose detail from it.
func (c PreprocessConfig) ShouldPreprocess(dpi int, m Metrics) bool {
	clean := dpi >= c.SkipMinDPI && m.Entropy > c.SkipMinEntropy && m.StdDev > c.SkipMinStdDev
	return !clean
}

type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Name() string { return "grayscale" }

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

type ContrastProcessor struct {
	amount float64
}

func NewContrastProcessor(amount float64) *ContrastProcessor {
	return &ContrastProcessor{amount: amount}
}

func (p *ContrastProcessor) Name() string { return "contrast" }

func (p *ContrastProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

type SharpenProcessor struct {
	sigma float64
}

func NewSharpenProcessor(sigma float64) *SharpenProcessor {
	return &SharpenProcessor{sigma: sigma}
}

func (p *SharpenProcessor) Name() string { return "sharpen" }

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.sigma), nil
}

// MedianProcessor removes salt-and-pepper noise with a square median window
// on the luminance channel.
type MedianProcessor struct {
	size int
}

func NewMedianProcessor(size int) *MedianProcessor {
	if size < 3 {
		size = 3
	}
	if size%2 == 0 {
		size++
	}
	return &MedianProcessor{size: size}
}

func (p *MedianProcessor) Name() string { return "median" }

func (p *MedianProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	src := toGray(img)
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	half := p.size / 2
	window := make([]uint8, 0, p.size*p.size)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			window = window[:0]
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= bounds.Min.X && nx < bounds.Max.X && ny >= bounds.Min.Y && ny < bounds.Max.Y {
						window = append(window, src.GrayAt(nx, ny).Y)
					}
				}
			}
			slices.Sort(window)
			dst.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return dst, nil
}

// Metrics are the luminance statistics that drive the preprocessing decision.
type Metrics struct {
	// Entropy is the Shannon entropy of the gray histogram, in bits (0..8).
	Entropy float64
	// StdDev is the standard deviation of gray levels, a contrast measure.
	StdDev float64
}

func Measure(img image.Image) Metrics {
	gray := toGray(img)
	var hist [256]int
	bounds := gray.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return Metrics{}
	}

	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			hist[v]++
			sum += float64(v)
		}
	}
	mean := sum / float64(total)

	var entropy, variance float64
	for v, n := range hist {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
		d := float64(v) - mean
		variance += float64(n) * d * d
	}
	return Metrics{Entropy: entropy, StdDev: math.Sqrt(variance / float64(total))}
}

// EstimateDPI guesses the scan resolution of a standalone image, assuming
// the page is A4 or Letter width.
func EstimateDPI(img image.Image) int {
	const pageWidthInches = 8.27
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	return int(math.Round(float64(min(w, h)) / pageWidthInches))
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}
