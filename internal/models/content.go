package models

// BlockKind tags which payload a ContentBlock carries.
type BlockKind string

const (
	BlockText   BlockKind = "text"
	BlockTable  BlockKind = "table"
	BlockHeader BlockKind = "header"
	BlockList   BlockKind = "list"
	BlockImage  BlockKind = "image"
)

// Extractor confidence levels.
const (
	ConfidenceNative    = 0.9
	ConfidenceHeuristic = 0.7
	ConfidenceFallback  = 0.6
)

// ContentBlock is the unit every extractor produces.
//
// Kind selects the payload: Table is set only for BlockTable and Level only
// for BlockHeader. Text holds the content of every other kind, and for
// BlockImage the alt text or OCR output of the image.
type ContentBlock struct {
	Kind       BlockKind    `json:"kind"`
	Text       string       `json:"text,omitempty"`
	Table      *TableMatrix `json:"table,omitempty"`
	Level      int          `json:"level,omitempty"`
	PageNumber int          `json:"pageNumber"`
	Confidence float64      `json:"confidence"`
}

func NewTextBlock(text string, page int, confidence float64) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text, PageNumber: page, Confidence: confidence}
}

func NewHeaderBlock(text string, level, page int, confidence float64) ContentBlock {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return ContentBlock{Kind: BlockHeader, Text: text, Level: level, PageNumber: page, Confidence: confidence}
}

func NewListBlock(text string, page int, confidence float64) ContentBlock {
	return ContentBlock{Kind: BlockList, Text: text, PageNumber: page, Confidence: confidence}
}

func NewTableBlock(table *TableMatrix, page int, confidence float64) ContentBlock {
	return ContentBlock{Kind: BlockTable, Table: table, PageNumber: page, Confidence: confidence}
}

// TableMatrix is a rectangular grid of cell texts, first row being the header.
type TableMatrix struct {
	Rows [][]string `json:"rows"`
}

func (t *TableMatrix) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NumCols is the width of the widest row.
func (t *TableMatrix) NumCols() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, r := range t.Rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}

// IsEmpty reports whether every cell is blank.
func (t *TableMatrix) IsEmpty() bool {
	if t == nil {
		return true
	}
	for _, r := range t.Rows {
		for _, c := range r {
			if c != "" {
				return false
			}
		}
	}
	return true
}
