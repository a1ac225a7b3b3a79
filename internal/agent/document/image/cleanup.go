package image

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	ocrHyphenBreak = regexp.MustCompile(`(\p{Ll})-\n(\p{Ll})`)
	ocrSpaceRun    = regexp.MustCompile(`[ \t\f\v]+`)
	ocrBlankRun    = regexp.MustCompile(`\n{3,}`)
)

// CleanupArtifacts normalizes raw OCR output: NFKC folding (ligatures, full
// width forms), words rejoined across line-end hyphens, control characters
// removed, whitespace collapsed, and stray one to three symbol lines dropped.
func CleanupArtifacts(raw string) string {
	text := norm.NFKC.String(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '�' {
			return -1
		}
		return r
	}, text)
	text = ocrHyphenBreak.ReplaceAllString(text, "$1$2")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(ocrSpaceRun.ReplaceAllString(line, " "))
		if isSpeck(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")
	text = ocrBlankRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// isSpeck reports a short line with no letter or digit, usually dust or a
// table rule read as text.
func isSpeck(line string) bool {
	if line == "" || utf8.RuneCountInString(line) > 3 {
		return false
	}
	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
