package pptx

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/document-chunker/internal/agent/document/text"
)

// maxTitleRunes bounds the lines that can act as a slide title.
const maxTitleRunes = 60

var (
	blankRun    = regexp.MustCompile(`\n[ \t]*\n\s*`)
	slideMarker = regexp.MustCompile(`(?i)^(?:slide\s*)?(\d{1,3})\s*[.:)]?$`)
)

// Slide is one recovered slide.
type Slide struct {
	Number int
	Title  string
	Body   []string
}

// SegmentSlides splits flattened presentation text into slides. It tries
// blank line runs, then numeric slide markers, then short title lines, and
// returns all content as one slide when none of them yields two slides.
func SegmentSlides(content string) []Slide {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if content == "" {
		return nil
	}
	if slides := byBlankLines(content); len(slides) >= 2 {
		return slides
	}
	lines := nonEmptyLines(content)
	if slides := byMarkers(lines); len(slides) >= 2 {
		return slides
	}
	if slides := byTitles(lines); len(slides) >= 2 {
		return slides
	}
	return []Slide{{Number: 1, Body: lines}}
}

func byBlankLines(content string) []Slide {
	var slides []Slide
	for _, seg := range blankRun.Split(content, -1) {
		lines := nonEmptyLines(seg)
		if len(lines) == 0 {
			continue
		}
		slides = append(slides, titled(len(slides)+1, lines))
	}
	return slides
}

func byMarkers(lines []string) []Slide {
	var slides []Slide
	var cur *Slide
	var prelude []string
	markers := 0
	for _, l := range lines {
		if m := slideMarker.FindStringSubmatch(l); m != nil {
			n, _ := strconv.Atoi(m[1])
			markers++
			if cur != nil {
				slides = append(slides, *cur)
			}
			cur = &Slide{Number: n}
			continue
		}
		if cur == nil {
			prelude = append(prelude, l)
			continue
		}
		if cur.Title == "" && len(cur.Body) == 0 && isTitle(l) {
			cur.Title = l
			continue
		}
		cur.Body = append(cur.Body, l)
	}
	if cur != nil {
		slides = append(slides, *cur)
	}
	if markers < 2 {
		return nil
	}
	if len(prelude) > 0 {
		slides[0].Body = append(prelude, slides[0].Body...)
	}
	return slides
}

func byTitles(lines []string) []Slide {
	var starts []int
	for i, l := range lines {
		if i == len(lines)-1 || !isTitle(l) {
			continue
		}
		// a title needs body text under it
		if isTitle(lines[i+1]) {
			continue
		}
		starts = append(starts, i)
	}
	if len(starts) < 2 {
		return nil
	}

	var slides []Slide
	if starts[0] > 0 {
		slides = append(slides, Slide{Number: 1, Body: lines[:starts[0]]})
	}
	for k, s := range starts {
		end := len(lines)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		slides = append(slides, Slide{Number: len(slides) + 1, Title: lines[s], Body: lines[s+1 : end]})
	}
	return slides
}

func titled(n int, lines []string) Slide {
	if len(lines) > 1 && utf8.RuneCountInString(lines[0]) <= maxTitleRunes {
		return Slide{Number: n, Title: lines[0], Body: lines[1:]}
	}
	if len(lines) == 1 && isTitle(lines[0]) {
		return Slide{Number: n, Title: lines[0]}
	}
	return Slide{Number: n, Body: lines}
}

func isTitle(line string) bool {
	return utf8.RuneCountInString(line) <= maxTitleRunes && text.IsHeadingLine(line)
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
