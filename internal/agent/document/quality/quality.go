// Package quality decides whether extracted text can be trusted or whether a
// document must go through OCR, and whether OCR output itself is usable.
package quality

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/metrics"
)

const (
	GateScanned = "is_scanned"
	GateGarbage = "is_garbage"
)

// Thresholds for both gates. A check fires when the measured value crosses
// its threshold in the direction given by the field name.
type Thresholds struct {
	// is-scanned
	MinTextLength    int     `yaml:"minTextLength"`
	MinWordCount     int     `yaml:"minWordCount"`
	MinDensity       float64 `yaml:"minDensity"`
	MaxGarbledRatio  float64 `yaml:"maxGarbledRatio"`
	LongWordLength   int     `yaml:"longWordLength"`
	CapsRunLength    int     `yaml:"capsRunLength"`
	NonWordRunLength int     `yaml:"nonWordRunLength"`
	MinAvgLineLength float64 `yaml:"minAvgLineLength"`
	MaxAvgLineLength float64 `yaml:"maxAvgLineLength"`

	// is-garbage
	MinGarbageLength     int     `yaml:"minGarbageLength"`
	MaxSpecialRatio      float64 `yaml:"maxSpecialRatio"`
	MinLetterRatio       float64 `yaml:"minLetterRatio"`
	MaxPunctuationRatio  float64 `yaml:"maxPunctuationRatio"`
	MaxGibberishRatio    float64 `yaml:"maxGibberishRatio"`
	GibberishSpecialRate float64 `yaml:"gibberishSpecialRate"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTextLength:    100,
		MinWordCount:     20,
		MinDensity:       0.30,
		MaxGarbledRatio:  0.10,
		LongWordLength:   20,
		CapsRunLength:    10,
		NonWordRunLength: 3,
		MinAvgLineLength: 20,
		MaxAvgLineLength: 200,

		MinGarbageLength:     10,
		MaxSpecialRatio:      0.15,
		MinLetterRatio:       0.60,
		MaxPunctuationRatio:  0.20,
		MaxGibberishRatio:    0.30,
		GibberishSpecialRate: 0.20,
	}
}

// Check is one fired heuristic.
type Check struct {
	Gate      string  `json:"gate"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Verdict is the full diagnosis of a text.
type Verdict struct {
	Scanned bool    `json:"scanned"`
	Garbage bool    `json:"garbage"`
	Checks  []Check `json:"checks"`
}

type Gate struct {
	th     Thresholds
	logger logger.Logger

	capsRun    *regexp.Regexp
	nonWordRun *regexp.Regexp
}

// repeatedSymbols are the noise patterns OCR engines emit on blank or
// dirty regions.
var repeatedSymbols = []struct {
	name string
	re   *regexp.Regexp
}{
	{"repeated_section_sign", regexp.MustCompile(`§{3,}`)},
	{"repeated_pipe", regexp.MustCompile(`\|{3,}`)},
	{"repeated_brackets", regexp.MustCompile(`[\[\]{}()<>]{3,}`)},
	{"repeated_exclamation", regexp.MustCompile(`!{3,}`)},
	{"repeated_apostrophe", regexp.MustCompile(`'{5,}`)},
	{"repeated_tilde", regexp.MustCompile(`~{3,}`)},
	{"repeated_caret", regexp.MustCompile(`\^{3,}`)},
}

func NewGate(th Thresholds, log logger.Logger) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	return &Gate{
		th:         th,
		logger:     log.Named("quality"),
		capsRun:    regexp.MustCompile(`[A-Z]{` + strconv.Itoa(th.CapsRunLength) + `,}`),
		nonWordRun: regexp.MustCompile(`[^\p{L}\p{N}_\s]{` + strconv.Itoa(th.NonWordRunLength) + `,}`),
	}
}

// IsScanned reports whether text looks like the embedded text layer of a
// scanned document rather than real content.
func (g *Gate) IsScanned(text string) bool {
	checks := append(g.scannedChecks(text), g.garbageChecks(text)...)
	g.report(GateScanned, checks)
	return len(checks) > 0
}

// IsGarbageOCROutput reports whether OCR output is unusable.
func (g *Gate) IsGarbageOCROutput(text string) bool {
	checks := g.garbageChecks(text)
	g.report(GateGarbage, checks)
	return len(checks) > 0
}

// Evaluate runs both gates and returns every fired check.
func (g *Gate) Evaluate(text string) Verdict {
	scanned := g.scannedChecks(text)
	garbage := g.garbageChecks(text)
	g.report(GateScanned, scanned)
	g.report(GateGarbage, garbage)
	return Verdict{
		Scanned: len(scanned) > 0 || len(garbage) > 0,
		Garbage: len(garbage) > 0,
		Checks:  append(scanned, garbage...),
	}
}

func (g *Gate) report(gate string, checks []Check) {
	for _, c := range checks {
		g.logger.Info("Quality check fired",
			logger.String("gate", gate),
			logger.String("check", c.Name),
			logger.Float64("value", c.Value),
			logger.Float64("threshold", c.Threshold),
		)
		metrics.RecordQualityRejection(gate, c.Name)
	}
}

func (g *Gate) scannedChecks(text string) []Check {
	var fired []Check
	add := func(name string, value, threshold float64) {
		fired = append(fired, Check{Gate: GateScanned, Name: name, Value: value, Threshold: threshold})
	}

	trimmed := strings.TrimSpace(text)
	length := utf8.RuneCountInString(trimmed)
	if length < g.th.MinTextLength {
		add("text_too_short", float64(length), float64(g.th.MinTextLength))
	}

	words := strings.Fields(trimmed)
	if len(words) < g.th.MinWordCount {
		add("too_few_words", float64(len(words)), float64(g.th.MinWordCount))
	}

	if d := Density(text); d < g.th.MinDensity {
		add("low_density", d, g.th.MinDensity)
	}

	if len(words) > 0 {
		garbled := 0
		for _, w := range words {
			if utf8.RuneCountInString(w) >= g.th.LongWordLength {
				garbled++
			}
		}
		garbled += len(g.capsRun.FindAllStringIndex(trimmed, -1))
		garbled += len(g.nonWordRun.FindAllStringIndex(trimmed, -1))
		if ratio := float64(garbled) / float64(len(words)); ratio > g.th.MaxGarbledRatio {
			add("garbled_patterns", ratio, g.th.MaxGarbledRatio)
		}
	}

	if avg, ok := avgLineLength(trimmed); ok {
		if avg < g.th.MinAvgLineLength {
			add("short_lines", avg, g.th.MinAvgLineLength)
		} else if avg > g.th.MaxAvgLineLength {
			add("long_lines", avg, g.th.MaxAvgLineLength)
		}
	}
	return fired
}

func (g *Gate) garbageChecks(text string) []Check {
	var fired []Check
	add := func(name string, value, threshold float64) {
		fired = append(fired, Check{Gate: GateGarbage, Name: name, Value: value, Threshold: threshold})
	}

	trimmed := strings.TrimSpace(text)
	length := utf8.RuneCountInString(trimmed)
	if length < g.th.MinGarbageLength {
		add("text_too_short", float64(length), float64(g.th.MinGarbageLength))
	}

	var total, letters, punct, special int
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
		case unicode.IsPunct(r):
			punct++
		default:
			special++
		}
	}
	if total > 0 {
		if ratio := float64(special) / float64(total); ratio > g.th.MaxSpecialRatio {
			add("special_ratio", ratio, g.th.MaxSpecialRatio)
		}
		if ratio := float64(letters) / float64(total); ratio < g.th.MinLetterRatio {
			add("letter_ratio", ratio, g.th.MinLetterRatio)
		}
		if ratio := float64(punct) / float64(total); ratio > g.th.MaxPunctuationRatio {
			add("punctuation_ratio", ratio, g.th.MaxPunctuationRatio)
		}
	}

	for _, p := range repeatedSymbols {
		if p.re.MatchString(trimmed) {
			add(p.name, 1, 0)
		}
	}

	words := strings.Fields(trimmed)
	if len(words) > 0 {
		gibberish := 0
		for _, w := range words {
			if g.isGibberish(w) {
				gibberish++
			}
		}
		if ratio := float64(gibberish) / float64(len(words)); ratio > g.th.MaxGibberishRatio {
			add("gibberish_words", ratio, g.th.MaxGibberishRatio)
		}
	}
	return fired
}

// isGibberish flags a word that mixes case mid-word, mixes letters with
// digits, or is made of too many special characters. Surrounding
// punctuation is ignored.
func (g *Gate) isGibberish(word string) bool {
	w := strings.TrimFunc(word, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if w == "" {
		return true
	}

	runes := []rune(w)
	var hasLetter, hasDigit bool
	special := 0
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
			if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
				return true
			}
		case unicode.IsDigit(r):
			hasDigit = true
		case r == '\'' || r == '’' || r == '-':
		default:
			special++
		}
	}
	if hasLetter && hasDigit {
		return true
	}
	return float64(special)/float64(len(runes)) > g.th.GibberishSpecialRate
}

// Density is the share of non-whitespace runes in text.
func Density(text string) float64 {
	total, solid := 0, 0
	for _, r := range text {
		total++
		if !unicode.IsSpace(r) {
			solid++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(solid) / float64(total)
}

func avgLineLength(text string) (float64, bool) {
	var sum, n int
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sum += utf8.RuneCountInString(line)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}
