package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-chunker/pkg/logger"
)

const cleanLine = "The quarterly report describes revenue growth across all regions of the company."

func cleanText(lines int) string {
	return strings.Repeat(cleanLine+"\n", lines)
}

func firedNames(v Verdict) []string {
	var out []string
	for _, c := range v.Checks {
		out = append(out, c.Name)
	}
	return out
}

func TestIsScanned_CleanTextPasses(t *testing.T) {
	g := NewGate(DefaultThresholds(), logger.NewTestLogger())
	assert.False(t, g.IsScanned(cleanText(6)))
}

func TestIsScanned_Checks(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		check string
	}{
		{"too short", "Just a few words here.", "text_too_short"},
		{"few words", strings.Repeat("internationalization ", 6), "too_few_words"},
		{"caps runs", strings.Repeat("ABCDEFGHIJKL and some ordinary words follow after it\n", 6), "garbled_patterns"},
		{"short lines", strings.Repeat("tiny words\n", 30), "short_lines"},
		{"long lines", strings.Repeat("word ", 60), "long_lines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(DefaultThresholds(), nil)
			v := g.Evaluate(tt.text)
			assert.True(t, v.Scanned)
			assert.Contains(t, firedNames(v), tt.check)
			assert.True(t, g.IsScanned(tt.text))
		})
	}
}

func TestIsScanned_MonotonicInDensity(t *testing.T) {
	g := NewGate(DefaultThresholds(), nil)
	base := cleanText(6)

	sawClean, sawScanned := false, false
	for pad := 0; pad < 2000; pad += 25 {
		text := base + strings.Repeat("\n", pad)
		d := Density(text)
		scanned := g.IsScanned(text)
		assert.Equal(t, d < 0.30, scanned, "density %.3f", d)
		if scanned {
			sawScanned = true
		} else {
			require.False(t, sawScanned, "result flipped back to clean at density %.3f", d)
			sawClean = true
		}
	}
	assert.True(t, sawClean)
	assert.True(t, sawScanned)
}

func TestIsScanned_LogsEveryFiredCheck(t *testing.T) {
	log := logger.NewTestLogger()
	g := NewGate(DefaultThresholds(), log)

	require.True(t, g.IsScanned("short"))

	checks := log.FieldValues("check")
	assert.Contains(t, checks, "text_too_short")
	assert.Contains(t, checks, "too_few_words")
	assert.Contains(t, log.FieldValues("gate"), GateScanned)
}

func TestIsGarbageOCROutput_SymbolNoise(t *testing.T) {
	log := logger.NewTestLogger()
	g := NewGate(DefaultThresholds(), log)

	assert.True(t, g.IsGarbageOCROutput("§§§§§ |||| {{{{"))

	checks := log.FieldValues("check")
	assert.Contains(t, checks, "repeated_section_sign")
	assert.Contains(t, checks, "repeated_pipe")
	assert.Contains(t, checks, "repeated_brackets")
	assert.Contains(t, checks, "letter_ratio")
}

func TestIsGarbageOCROutput(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"clean prose", cleanText(2), false},
		{"contractions", "It's the team's plan and we don't expect changes before spring.", false},
		{"too short", "ok fine", true},
		{"digits dominate", "1234 5678 9012 3456 7890 abc", true},
		{"punctuation", "a.b.c.d.e.f.g.h.i.j.k.l.m", true},
		{"exclamations", "Great news everyone!!! The launch went well", true},
		{"apostrophes", "The text ''''' came out of the scanner", true},
		{"gibberish words", "heLLo w0rld tHis iS noT fiNe at all", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(DefaultThresholds(), nil)
			assert.Equal(t, tt.want, g.IsGarbageOCROutput(tt.text))
		})
	}
}

func TestNewGate_ZeroThresholdsUseDefaults(t *testing.T) {
	g := NewGate(Thresholds{}, nil)
	assert.Equal(t, DefaultThresholds(), g.th)
}
