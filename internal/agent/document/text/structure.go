package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/feichai0017/document-chunker/internal/models"
)

var (
	markdownHeader = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)
	listMarker     = regexp.MustCompile(`^\s*(?:[-*•▪◦‣]|\d{1,3}[.)])\s+`)
	blankLines     = regexp.MustCompile(`\n\s*\n`)
	hyphenBreak    = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
)

const maxHeadingLength = 80

// Paragraphs splits text on blank lines and drops empty parts.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	for _, p := range blankLines.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Structure turns raw page text into blocks: blank lines separate
// paragraphs, short title-like paragraphs become headers and runs of list
// items become list blocks.
func Structure(text string, page int, confidence float64) []models.ContentBlock {
	paras := Paragraphs(text)
	blocks := make([]models.ContentBlock, 0, len(paras))

	for i, p := range paras {
		lines := splitLines(p)

		if m := markdownHeader.FindStringSubmatch(lines[0]); m != nil && len(lines) == 1 {
			blocks = append(blocks, models.NewHeaderBlock(m[2], len(m[1]), page, confidence))
			continue
		}

		if isList(lines) {
			blocks = append(blocks, models.NewListBlock(normalizeList(lines), page, confidence))
			continue
		}

		if len(lines) == 1 && i < len(paras)-1 && IsHeadingLine(lines[0]) {
			level := 2
			if isAllCaps(lines[0]) {
				level = 1
			}
			blocks = append(blocks, models.NewHeaderBlock(lines[0], level, page, confidence))
			continue
		}

		blocks = append(blocks, models.NewTextBlock(JoinLines(p), page, confidence))
	}
	return blocks
}

// IsHeadingLine reports whether a single line reads like a title: short, no
// sentence punctuation at the end, and starting with an upper case letter or
// a section number.
func IsHeadingLine(line string) bool {
	line = strings.TrimSpace(line)
	n := utf8.RuneCountInString(line)
	if n == 0 || n > maxHeadingLength {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(line)
	if strings.ContainsRune(".,;!?", last) {
		return false
	}
	if len(strings.Fields(line)) > 12 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(line)
	return unicode.IsUpper(first) || unicode.IsDigit(first)
}

// JoinLines joins hard-wrapped lines of one paragraph, repairing words
// hyphenated across a line break.
func JoinLines(p string) string {
	p = hyphenBreak.ReplaceAllString(p, "$1$2")
	return strings.Join(splitLines(p), " ")
}

func splitLines(p string) []string {
	var out []string
	for _, l := range strings.Split(p, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func isList(lines []string) bool {
	for _, l := range lines {
		if !listMarker.MatchString(l) {
			return false
		}
	}
	return true
}

// normalizeList keeps numbered markers and rewrites bullets as "- ".
func normalizeList(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		marker := strings.TrimSpace(listMarker.FindString(l))
		body := strings.TrimSpace(l[len(listMarker.FindString(l)):])
		if marker != "" && unicode.IsDigit(rune(marker[0])) {
			out = append(out, marker+" "+body)
			continue
		}
		out = append(out, "- "+body)
	}
	return strings.Join(out, "\n")
}

func isAllCaps(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters >= 3
}
