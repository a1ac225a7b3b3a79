package splitter

import (
	"context"
	"regexp"
	"strings"

	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

var headerLine = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

type section struct {
	header string // header text without the leading #s
	line   string // header line as written
	text   string // header line and body
	body   string
}

// sections cuts Markdown at header lines outside fenced code. Text before
// the first header forms a section without header.
func sections(content string) []section {
	var (
		out   []section
		cur   section
		lines []string
		body  []string
		fence bool
	)
	flush := func() {
		cur.text = strings.TrimSpace(strings.Join(lines, "\n"))
		cur.body = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.text != "" {
			out = append(out, cur)
		}
	}
	for _, l := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = !fence
		}
		if !fence {
			if m := headerLine.FindStringSubmatch(trimmed); m != nil {
				flush()
				cur, lines, body = section{header: m[2], line: trimmed}, []string{l}, nil
				continue
			}
		}
		lines = append(lines, l)
		body = append(body, l)
	}
	flush()
	return out
}

type part struct {
	text  string
	table bool
}

// parts cuts the section body into runs of pipe-table rows and runs of
// prose. Every table run carries the header line; of the prose runs only
// one that opens the section does.
func (sec section) parts() []part {
	var (
		out   []part
		run   []string
		table bool
		fence bool
	)
	flush := func() {
		text := strings.TrimSpace(strings.Join(run, "\n"))
		run = nil
		if text == "" {
			return
		}
		if sec.line != "" && (table || len(out) == 0) {
			text = sec.line + "\n\n" + text
		}
		out = append(out, part{text: text, table: table})
	}
	for _, l := range strings.Split(sec.body, "\n") {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fence = !fence
		}
		row := !fence && strings.HasPrefix(trimmed, "|")
		if trimmed != "" && row != table {
			flush()
			table = row
		}
		run = append(run, l)
	}
	flush()
	if len(out) == 0 && sec.text != "" {
		out = append(out, part{text: sec.text})
	}
	return out
}

// pending is prose too short to stand alone, waiting for the next prose run.
type pending struct {
	text   string
	index  int
	header string
}

// splitSections turns each section into chunks: table runs verbatim, short
// prose whole and long prose through the semantic split. Prose under
// MinSectionSize is carried into the next prose run but never across a
// table. Semantic chunks of the same section are merged adaptively at the
// end.
func (s *Splitter) splitSections(ctx context.Context, content, title string) ([]models.Chunk, error) {
	secs := sections(content)
	var (
		chunks []models.Chunk
		carry  *pending
	)
	for i, sec := range secs {
		header := sec.header
		if header == "" {
			header = title
		}
		for _, p := range sec.parts() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			meta := models.ChunkMetadata{
				SourceType:   models.SourceMarkdown,
				SectionIndex: models.IntPtr(i),
				HeaderText:   header,
			}

			if p.table {
				if carry != nil {
					chunks = append(chunks, carry.chunk())
					carry = nil
				}
				meta.SplitMethod = models.SplitTableSection
				chunks = append(chunks, models.Chunk{Text: p.text, Metadata: meta})
				continue
			}

			text := p.text
			if carry != nil {
				text = carry.text + "\n\n" + text
				carry = nil
			}
			n := runes(text)
			switch {
			case n > s.cfg.SectionSplitSize:
				groups, err := s.semantic(ctx, text, s.cfg.MarkdownBuffer, s.cfg.MarkdownPercentile)
				if err != nil {
					return nil, err
				}
				meta.SplitMethod = models.SplitSemantic
				for _, g := range groups {
					chunks = append(chunks, models.Chunk{Text: g, Metadata: meta})
				}
			case n >= s.cfg.MinSectionSize:
				meta.SplitMethod = models.SplitHeaderSection
				chunks = append(chunks, models.Chunk{Text: text, Metadata: meta})
			default:
				carry = &pending{text: text, index: i, header: header}
			}
		}
	}

	if carry != nil {
		if len(chunks) > 0 && chunks[len(chunks)-1].Metadata.SplitMethod == models.SplitHeaderSection {
			last := &chunks[len(chunks)-1]
			last.Text += "\n\n" + carry.text
		} else {
			chunks = append(chunks, carry.chunk())
		}
	}

	merged, err := s.merge(ctx, chunks, sameSemanticSection)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Split markdown",
		logger.Int("sections", len(secs)),
		logger.Int("chunks", len(merged)),
	)
	return merged, nil
}

// chunk labels carried text with the header it opens with, or the header of
// the section it came from.
func (p *pending) chunk() models.Chunk {
	header := p.header
	if m := headerLine.FindStringSubmatch(strings.TrimSpace(strings.SplitN(p.text, "\n", 2)[0])); m != nil {
		header = m[2]
	}
	return models.Chunk{
		Text: p.text,
		Metadata: models.ChunkMetadata{
			SourceType:   models.SourceMarkdown,
			SectionIndex: models.IntPtr(p.index),
			HeaderText:   header,
			SplitMethod:  models.SplitHeaderSection,
		},
	}
}

func sameSemanticSection(a, b models.Chunk) bool {
	return a.Metadata.SplitMethod == models.SplitSemantic &&
		b.Metadata.SplitMethod == models.SplitSemantic &&
		a.Metadata.SectionIndex != nil && b.Metadata.SectionIndex != nil &&
		*a.Metadata.SectionIndex == *b.Metadata.SectionIndex
}
