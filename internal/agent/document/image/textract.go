package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

type TextractConfig struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
	EnableTable   bool
}

// TextractAPI is the subset of the Textract client the engine calls.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
	AnalyzeDocument(ctx context.Context, in *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

// TextractEngine sends page images to AWS Textract.
type TextractEngine struct {
	client TextractAPI
	logger logger.Logger
	config *TextractConfig
}

func NewTextractEngine(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractEngine, error) {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKey,
		cfg.SecretKey,
		"",
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return NewTextractEngineWithClient(textract.NewFromConfig(awsCfg), cfg, log), nil
}

func NewTextractEngineWithClient(client TextractAPI, cfg *TextractConfig, log logger.Logger) *TextractEngine {
	if log == nil {
		log = logger.NewNop()
	}
	return &TextractEngine{client: client, logger: log.Named("textract"), config: cfg}
}

func (e *TextractEngine) Name() string { return "textract" }

func (e *TextractEngine) Recognize(ctx context.Context, img image.Image, _ RecognizeOptions) (Recognition, error) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return Recognition{}, fmt.Errorf("failed to encode image: %w", err)
	}
	doc := &types.Document{Bytes: buf.Bytes()}

	var blocks []types.Block
	if e.config.EnableTable {
		out, err := e.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
			Document:     doc,
			FeatureTypes: []types.FeatureType{types.FeatureTypeTables},
		})
		if err != nil {
			return Recognition{}, fmt.Errorf("%w: failed to analyze document: %v", document.ErrCollaboratorUnavailable, err)
		}
		blocks = out.Blocks
	} else {
		out, err := e.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{Document: doc})
		if err != nil {
			return Recognition{}, fmt.Errorf("%w: failed to detect text: %v", document.ErrCollaboratorUnavailable, err)
		}
		blocks = out.Blocks
	}

	lines, confidence := e.processLines(blocks)
	rec := Recognition{
		Text:       strings.Join(lines, "\n"),
		Confidence: confidence,
	}
	if e.config.EnableTable {
		rec.Tables = processTables(blocks)
	}
	return rec, nil
}

// DetectOrientation always returns 0; Textract corrects rotation itself.
func (e *TextractEngine) DetectOrientation(ctx context.Context, img image.Image) (int, error) {
	return 0, nil
}

// processLines keeps LINE blocks above the confidence floor and returns
// them with their mean confidence scaled to 0..1.
func (e *TextractEngine) processLines(blocks []types.Block) ([]string, float64) {
	var texts []string
	var sum float64
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil || block.Confidence == nil {
			continue
		}
		if *block.Confidence < e.config.MinConfidence {
			continue
		}
		texts = append(texts, *block.Text)
		sum += float64(*block.Confidence)
	}
	if len(texts) == 0 {
		return nil, 0
	}
	return texts, sum / float64(len(texts)) / 100
}

// processTables rebuilds each TABLE block from its CELL children. Cell text
// is the concatenation of the cell's WORD children.
func processTables(blocks []types.Block) []*models.TableMatrix {
	byID := make(map[string]types.Block, len(blocks))
	for _, b := range blocks {
		if b.Id != nil {
			byID[*b.Id] = b
		}
	}

	var tables []*models.TableMatrix
	for _, b := range blocks {
		if b.BlockType != types.BlockTypeTable {
			continue
		}
		var cells []types.Block
		var rows, cols int32
		for _, id := range childIDs(b) {
			cell, ok := byID[id]
			if !ok || cell.BlockType != types.BlockTypeCell || cell.RowIndex == nil || cell.ColumnIndex == nil {
				continue
			}
			cells = append(cells, cell)
			rows = max(rows, *cell.RowIndex)
			cols = max(cols, *cell.ColumnIndex)
		}
		if rows == 0 || cols == 0 {
			continue
		}

		grid := make([][]string, rows)
		for i := range grid {
			grid[i] = make([]string, cols)
		}
		for _, cell := range cells {
			var words []string
			for _, id := range childIDs(cell) {
				if w, ok := byID[id]; ok && w.Text != nil {
					words = append(words, *w.Text)
				}
			}
			grid[*cell.RowIndex-1][*cell.ColumnIndex-1] = strings.Join(words, " ")
		}
		tables = append(tables, &models.TableMatrix{Rows: grid})
	}
	return tables
}

func childIDs(b types.Block) []string {
	var ids []string
	for _, rel := range b.Relationships {
		if rel.Type == types.RelationshipTypeChild {
			ids = append(ids, rel.Ids...)
		}
	}
	return ids
}
