package models

// LayoutElement is a positioned text fragment on a PDF page. The origin is
// the top-left corner and Y grows downward.
type LayoutElement struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Content    string  `json:"content"`
	FontSize   float64 `json:"fontSize"`
	IsBold     bool    `json:"isBold"`
	IsItalic   bool    `json:"isItalic"`
	PageNumber int     `json:"pageNumber"`
	Confidence float64 `json:"confidence"`
}

func (e LayoutElement) Right() float64  { return e.X + e.Width }
func (e LayoutElement) Bottom() float64 { return e.Y + e.Height }

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Intersects reports whether r and o share any area. Touching edges count.
func (r Rect) Intersects(o Rect) bool {
	return r.X <= o.Right() && o.X <= r.Right() && r.Y <= o.Bottom() && o.Y <= r.Bottom()
}

// BoundingBox returns the smallest Rect enclosing all elements.
func BoundingBox(elements []LayoutElement) Rect {
	if len(elements) == 0 {
		return Rect{}
	}
	minX, minY := elements[0].X, elements[0].Y
	maxX, maxY := elements[0].Right(), elements[0].Bottom()
	for _, e := range elements[1:] {
		minX = min(minX, e.X)
		minY = min(minY, e.Y)
		maxX = max(maxX, e.Right())
		maxY = max(maxY, e.Bottom())
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Column is a horizontal range of the page and the elements bucketed into it.
type Column struct {
	Index    int             `json:"index"`
	MinX     float64         `json:"minX"`
	MaxX     float64         `json:"maxX"`
	Elements []LayoutElement `json:"elements"`
}

// Region is a horizontal band of the page.
type Region struct {
	Bounds   Rect            `json:"bounds"`
	Elements []LayoutElement `json:"elements"`
}

// PdfPage is the layout analysis of one page.
type PdfPage struct {
	PageNumber    int             `json:"pageNumber"`
	Width         float64         `json:"width"`
	Height        float64         `json:"height"`
	Elements      []LayoutElement `json:"elements"`
	Columns       []Column        `json:"columns"`
	HeaderRegion  *Region         `json:"headerRegion,omitempty"`
	FooterRegion  *Region         `json:"footerRegion,omitempty"`
	ContentRegion *Region         `json:"contentRegion,omitempty"`
}

// TableCandidate is a table hypothesis before validation.
type TableCandidate struct {
	Elements    []LayoutElement `json:"elements"`
	BoundingBox Rect            `json:"boundingBox"`
	Confidence  float64         `json:"confidence"`
	Rows        [][]string      `json:"rows"`
	Columns     int             `json:"columns"`
	Strategy    string          `json:"strategy"`
}
