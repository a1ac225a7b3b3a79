package models

// Split methods recorded on every chunk.
const (
	SplitSemantic      = "semantic"
	SplitHeaderSection = "header_section"
	SplitTableSection  = "table_section"
	SplitUnsplit       = "unsplit"
)

// Source types recorded on every chunk.
const (
	SourceMarkdown  = "markdown"
	SourcePlainText = "plain_text"
)

// SentenceWindow is one character-split piece and its neighbourhood.
type SentenceWindow struct {
	Sentence         string    `json:"sentence"`
	Index            int       `json:"index"`
	CombinedSentence string    `json:"combinedSentence"`
	Embedding        []float64 `json:"embedding,omitempty"`
	DistanceToNext   float64   `json:"distanceToNext,omitempty"`
}

type ChunkMetadata struct {
	SourceType   string `json:"sourceType"`
	SectionIndex *int   `json:"sectionIndex,omitempty"`
	HeaderText   string `json:"headerText,omitempty"`
	SplitMethod  string `json:"splitMethod"`
	Merged       bool   `json:"merged"`
}

// Chunk is one final output unit. Text is never blank.
type Chunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// IntPtr is a helper for optional section indices.
func IntPtr(i int) *int { return &i }
