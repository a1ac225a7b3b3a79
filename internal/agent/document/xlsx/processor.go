// Package xlsx turns spreadsheet sheets into titled table blocks, splitting
// large sheets into row and column ranges.
package xlsx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/agent/document/table"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

const MimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Limits controls how large sheets are split.
type Limits struct {
	MaxRows    int `yaml:"maxRows"`    // rows per table before splitting by rows
	MaxCols    int `yaml:"maxCols"`    // columns per table before splitting by columns
	MaxChars   int `yaml:"maxChars"`   // estimated Markdown size per table
	SampleRows int `yaml:"sampleRows"` // rows measured to estimate the size
}

func DefaultLimits() Limits {
	return Limits{MaxRows: 50, MaxCols: 20, MaxChars: 5000, SampleRows: 5}
}

type Processor struct {
	limits Limits
	logger logger.Logger
}

func NewProcessor(limits Limits, log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	def := DefaultLimits()
	if limits.MaxRows <= 0 {
		limits.MaxRows = def.MaxRows
	}
	if limits.MaxCols <= 0 {
		limits.MaxCols = def.MaxCols
	}
	if limits.MaxChars <= 0 {
		limits.MaxChars = def.MaxChars
	}
	if limits.SampleRows <= 0 {
		limits.SampleRows = def.SampleRows
	}
	return &Processor{limits: limits, logger: log.Named("xlsx")}
}

func (p *Processor) CanProcess(mimeType string) bool {
	return mimeType == MimeType
}

// Process emits a level 2 header and a table block per sheet range. Page
// numbers are 1-based sheet indexes.
func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.ContentBlock, error) {
	f, err := open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []models.ContentBlock
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := f.GetRows(sheet)
		if err != nil {
			p.logger.Warn("Skipping unreadable sheet", logger.String("sheet", sheet), logger.Error(err))
			continue
		}
		rows := normalize(raw)
		if len(rows) == 0 {
			continue
		}
		parts := p.split(sheet, rows)
		for _, part := range parts {
			blocks = append(blocks,
				models.NewHeaderBlock(part.title, 2, i+1, models.ConfidenceNative),
				models.NewTableBlock(&models.TableMatrix{Rows: part.rows}, i+1, models.ConfidenceNative),
			)
		}
		p.logger.Debug("Converted sheet",
			logger.String("sheet", sheet),
			logger.Int("rows", len(rows)),
			logger.Int("cols", len(rows[0])),
			logger.Int("tables", len(parts)),
		)
	}
	return blocks, nil
}

func (p *Processor) ExtractMetadata(ctx context.Context, file io.Reader) (models.DocumentMetadata, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return models.DocumentMetadata{}, fmt.Errorf("failed to read xlsx: %w", err)
	}
	f, err := open(bytes.NewReader(data))
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	defer f.Close()

	hash := sha256.Sum256(data)
	hashString := hex.EncodeToString(hash[:])
	meta := models.DocumentMetadata{
		ID:        hashString[:8],
		FileType:  models.Sheet,
		FileSize:  int64(len(data)),
		MimeType:  MimeType,
		Pages:     len(f.GetSheetList()),
		CreatedAt: time.Now(),
		Hash:      hashString,
		Properties: map[string]interface{}{
			"sheets": f.GetSheetList(),
		},
	}
	if props, err := f.GetDocProps(); err == nil && props != nil {
		meta.Title = props.Title
		meta.Author = props.Creator
	}
	return meta, nil
}

func (p *Processor) Close() error {
	return nil
}

func open(file io.Reader) (*excelize.File, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrUnsupportedFormat, err)
	}
	return f, nil
}

type sheetPart struct {
	title string
	rows  [][]string
}

// split cuts a sheet into column ranges of MaxCols and, within each, row
// ranges sized by MaxRows or by the estimated Markdown size, whichever is
// smaller. Every cell lands in exactly one part.
func (p *Processor) split(sheet string, rows [][]string) []sheetPart {
	numRows, numCols := len(rows), len(rows[0])
	colStep := numCols
	if numCols > p.limits.MaxCols {
		colStep = p.limits.MaxCols
	}

	var parts []sheetPart
	for c0 := 0; c0 < numCols; c0 += colStep {
		c1 := min(c0+colStep, numCols)
		slice := make([][]string, numRows)
		for i, r := range rows {
			slice[i] = r[c0:c1]
		}

		rowStep := p.rowStep(slice)
		for r0 := 0; r0 < numRows; r0 += rowStep {
			r1 := min(r0+rowStep, numRows)
			var labels []string
			if rowStep < numRows {
				labels = append(labels, fmt.Sprintf("Rows %d–%d of %d", r0+1, r1, numRows))
			}
			if colStep < numCols {
				labels = append(labels, fmt.Sprintf("Cols %d–%d of %d", c0+1, c1, numCols))
			}
			title := sheet
			if len(labels) > 0 {
				title += " (" + strings.Join(labels, ", ") + ")"
			}
			parts = append(parts, sheetPart{title: title, rows: slice[r0:r1]})
		}
	}
	return parts
}

// rowStep returns how many rows go into one table.
func (p *Processor) rowStep(rows [][]string) int {
	step := len(rows)
	if step > p.limits.MaxRows {
		step = p.limits.MaxRows
	}

	sample := rows[:min(p.limits.SampleRows, len(rows))]
	md := table.Markdown(&models.TableMatrix{Rows: sample})
	if md == "" {
		return max(step, 1)
	}
	perRow := float64(len(md)) / float64(len(sample))
	if perRow*float64(len(rows)) > float64(p.limits.MaxChars) {
		step = min(step, int(float64(p.limits.MaxChars)/perRow))
	}
	return max(step, 1)
}

// normalize trims cells, drops empty rows and pads every row to the widest
// one.
func normalize(raw [][]string) [][]string {
	var rows [][]string
	width := 0
	for _, r := range raw {
		cells := make([]string, len(r))
		last := -1
		for i, c := range r {
			cells[i] = strings.Join(strings.Fields(c), " ")
			if cells[i] != "" {
				last = i
			}
		}
		if last < 0 {
			continue
		}
		cells = cells[:last+1]
		width = max(width, len(cells))
		rows = append(rows, cells)
	}
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		rows[i] = r
	}
	return rows
}
