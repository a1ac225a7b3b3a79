// Package table detects tables among positioned text elements and renders
// table matrices.
package table

import (
	"math"
	"slices"
	"strings"

	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

const (
	StrategyGrid      = "grid"
	StrategyAlignment = "alignment"
)

// Config holds the detection tolerances and validation limits.
type Config struct {
	RowTolerance    float64 `yaml:"rowTolerance"`
	ColumnTolerance float64 `yaml:"columnTolerance"`
	MinOccupancy    float64 `yaml:"minOccupancy"`
	MinRows         int     `yaml:"minRows"`
	MinColumns      int     `yaml:"minColumns"`
	MinConfidence   float64 `yaml:"minConfidence"`
	MinAspectRatio  float64 `yaml:"minAspectRatio"`
	MaxAspectRatio  float64 `yaml:"maxAspectRatio"`
}

func DefaultConfig() Config {
	return Config{
		RowTolerance:    5,
		ColumnTolerance: 10,
		MinOccupancy:    0.6,
		MinRows:         2,
		MinColumns:      2,
		MinConfidence:   0.5,
		MinAspectRatio:  0.1,
		MaxAspectRatio:  10,
	}
}

type Extractor struct {
	cfg    Config
	logger logger.Logger
}

func NewExtractor(cfg Config, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{cfg: cfg, logger: log.Named("table")}
}

// Extract returns one table block per accepted candidate, top to bottom.
func (x *Extractor) Extract(elements []models.LayoutElement) []models.ContentBlock {
	accepted := x.Detect(elements)
	blocks := make([]models.ContentBlock, 0, len(accepted))
	for _, c := range accepted {
		page := 0
		if len(c.Elements) > 0 {
			page = c.Elements[0].PageNumber
		}
		blocks = append(blocks, models.NewTableBlock(&models.TableMatrix{Rows: c.Rows}, page, c.Confidence))
	}
	return blocks
}

// Detect validates candidates from both strategies and resolves overlaps.
func (x *Extractor) Detect(elements []models.LayoutElement) []models.TableCandidate {
	var valid []models.TableCandidate
	for _, c := range x.Candidates(elements) {
		if reason := x.Validate(c); reason != "" {
			x.logger.Debug("Table candidate rejected",
				logger.String("strategy", c.Strategy),
				logger.String("reason", reason),
				logger.Int("rows", len(c.Rows)),
				logger.Int("columns", c.Columns),
				logger.Float64("confidence", c.Confidence),
			)
			continue
		}
		valid = append(valid, c)
	}

	// highest confidence wins an overlap; grid wins ties because it is generated first
	slices.SortStableFunc(valid, func(a, b models.TableCandidate) int {
		return cmpFloat(b.Confidence, a.Confidence)
	})
	var kept []models.TableCandidate
	for _, c := range valid {
		overlaps := false
		for _, k := range kept {
			if c.BoundingBox.Intersects(k.BoundingBox) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}

	slices.SortStableFunc(kept, func(a, b models.TableCandidate) int {
		return cmpFloat(a.BoundingBox.Y, b.BoundingBox.Y)
	})
	return kept
}

// Candidates runs the grid and alignment strategies and returns every
// hypothesis that meets the occupancy bar, without validation.
func (x *Extractor) Candidates(elements []models.LayoutElement) []models.TableCandidate {
	if len(elements) == 0 {
		return nil
	}
	out := x.gridCandidates(elements)
	return append(out, x.alignmentCandidates(elements)...)
}

// Validate returns the reason a candidate is rejected, or "" when it is accepted.
func (x *Extractor) Validate(c models.TableCandidate) string {
	if len(c.Rows) < x.cfg.MinRows {
		return "too_few_rows"
	}
	if c.Columns < x.cfg.MinColumns {
		return "too_few_columns"
	}
	if c.Confidence < x.cfg.MinConfidence {
		return "low_confidence"
	}
	if c.BoundingBox.Height <= 0 {
		return "degenerate_bounding_box"
	}
	ratio := c.BoundingBox.Width / c.BoundingBox.Height
	if ratio < x.cfg.MinAspectRatio || ratio > x.cfg.MaxAspectRatio {
		return "aspect_ratio"
	}
	return ""
}

// gridCandidates groups elements into rows first. Every maximal run of
// consecutive rows holding at least two elements is one hypothesis.
func (x *Extractor) gridCandidates(elements []models.LayoutElement) []models.TableCandidate {
	rows := groupRows(elements, x.cfg.RowTolerance)

	var out []models.TableCandidate
	var run [][]models.LayoutElement
	flush := func() {
		for _, block := range splitByGap(run) {
			if c, ok := x.buildCandidate(block, StrategyGrid); ok {
				out = append(out, c)
			}
		}
		run = nil
	}
	for _, r := range rows {
		if len(r) >= 2 {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// alignmentCandidates finds X positions shared by several elements first,
// then rebuilds rows from the aligned elements only.
func (x *Extractor) alignmentCandidates(elements []models.LayoutElement) []models.TableCandidate {
	xs := make([]float64, 0, len(elements))
	for _, e := range elements {
		xs = append(xs, e.X)
	}
	clusters := clusterPositions(xs, x.cfg.ColumnTolerance)

	var aligned []models.LayoutElement
	for _, e := range elements {
		if c := clusters[nearest(clusters, e.X)]; c.count >= 2 && math.Abs(c.center-e.X) <= x.cfg.ColumnTolerance {
			aligned = append(aligned, e)
		}
	}

	var rows [][]models.LayoutElement
	for _, r := range groupRows(aligned, x.cfg.RowTolerance) {
		if len(r) >= 2 {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	var out []models.TableCandidate
	for _, block := range splitByGap(rows) {
		if c, ok := x.buildCandidate(block, StrategyAlignment); ok {
			out = append(out, c)
		}
	}
	return out
}

// splitByGap cuts a row sequence wherever the vertical pitch exceeds 2.5
// times the median pitch.
func splitByGap(rows [][]models.LayoutElement) [][][]models.LayoutElement {
	if len(rows) == 0 {
		return nil
	}
	gaps := make([]float64, 0, len(rows))
	for i := 1; i < len(rows); i++ {
		gaps = append(gaps, rows[i][0].Y-rows[i-1][0].Y)
	}
	limit := math.Inf(1)
	if len(gaps) > 0 {
		sorted := slices.Clone(gaps)
		slices.Sort(sorted)
		limit = 2.5 * sorted[len(sorted)/2]
	}

	var out [][][]models.LayoutElement
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || gaps[i-1] > limit {
			out = append(out, rows[start:i])
			start = i
		}
	}
	return out
}

func (x *Extractor) buildCandidate(rows [][]models.LayoutElement, strategy string) (models.TableCandidate, bool) {
	var all []models.LayoutElement
	xs := make([]float64, 0)
	for _, r := range rows {
		all = append(all, r...)
		for _, e := range r {
			xs = append(xs, e.X)
		}
	}
	clusters := clusterPositions(xs, x.cfg.ColumnTolerance)
	numCols := len(clusters)

	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = make([]string, numCols)
		for _, e := range r {
			j := nearest(clusters, e.X)
			text := strings.TrimSpace(e.Content)
			if cells[i][j] == "" {
				cells[i][j] = text
			} else if text != "" {
				cells[i][j] += " " + text
			}
		}
	}

	occupancy := consistency(cells, numCols)
	if occupancy < x.cfg.MinOccupancy {
		return models.TableCandidate{}, false
	}

	return models.TableCandidate{
		Elements:    all,
		BoundingBox: models.BoundingBox(all),
		Confidence:  occupancy,
		Rows:        cells,
		Columns:     numCols,
		Strategy:    strategy,
	}, true
}

// consistency averages the row fill rate and the column fill rate.
func consistency(cells [][]string, numCols int) float64 {
	if len(cells) == 0 || numCols == 0 {
		return 0
	}
	colFilled := make([]int, numCols)
	var rowScore float64
	for _, r := range cells {
		filled := 0
		for j, c := range r {
			if c != "" {
				filled++
				colFilled[j]++
			}
		}
		rowScore += float64(filled) / float64(numCols)
	}
	rowScore /= float64(len(cells))

	var colScore float64
	for _, n := range colFilled {
		colScore += float64(n) / float64(len(cells))
	}
	colScore /= float64(numCols)

	return (rowScore + colScore) / 2
}

func groupRows(elements []models.LayoutElement, tol float64) [][]models.LayoutElement {
	if len(elements) == 0 {
		return nil
	}
	sorted := slices.Clone(elements)
	slices.SortStableFunc(sorted, func(a, b models.LayoutElement) int {
		return cmpFloat(a.Y, b.Y)
	})
	var rows [][]models.LayoutElement
	current := []models.LayoutElement{sorted[0]}
	anchor := sorted[0].Y
	for _, e := range sorted[1:] {
		if math.Abs(e.Y-anchor) <= tol {
			current = append(current, e)
			continue
		}
		rows = append(rows, current)
		current = []models.LayoutElement{e}
		anchor = e.Y
	}
	rows = append(rows, current)
	for _, r := range rows {
		slices.SortStableFunc(r, func(a, b models.LayoutElement) int {
			return cmpFloat(a.X, b.X)
		})
	}
	return rows
}

type cluster struct {
	center float64
	count  int
}

// clusterPositions groups sorted positions whose distance to the running
// cluster mean is within tol.
func clusterPositions(values []float64, tol float64) []cluster {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var out []cluster
	sum, n := sorted[0], 1
	for _, v := range sorted[1:] {
		center := sum / float64(n)
		if v-center <= tol {
			sum += v
			n++
			continue
		}
		out = append(out, cluster{center: center, count: n})
		sum, n = v, 1
	}
	return append(out, cluster{center: sum / float64(n), count: n})
}

func nearest(clusters []cluster, v float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range clusters {
		if d := math.Abs(c.center - v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
