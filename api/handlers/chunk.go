package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-chunker/internal/agent"
	agentdoc "github.com/feichai0017/document-chunker/internal/agent/document"
	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/pkg/fetch"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

// Chunker is the synchronous pipeline surface served over HTTP.
type Chunker interface {
	ExtractAndChunk(ctx context.Context, fileType string, src agent.Source, opts agent.Options) ([]models.Chunk, error)
	SplitMarkdown(ctx context.Context, content, title string) []models.Chunk
	SplitPlainText(ctx context.Context, content string) []models.Chunk
}

type ChunkHandler struct {
	chunker   Chunker
	opts      agent.Options
	maxUpload int64
	logger    logger.Logger
}

type ChunkRequest struct {
	Location string `json:"location" binding:"required"`
	FileType string `json:"fileType"`
	Title    string `json:"title"`
}

type SplitRequest struct {
	Content string `json:"content" binding:"required"`
	Title   string `json:"title"`
}

type ChunkResponse struct {
	Count  int            `json:"count"`
	Chunks []models.Chunk `json:"chunks"`
}

func NewChunkHandler(chunker Chunker, opts agent.Options, maxUpload int64, log logger.Logger) *ChunkHandler {
	return &ChunkHandler{chunker: chunker, opts: opts, maxUpload: maxUpload, logger: log}
}

// Chunk extracts and splits one document. Multipart requests carry the
// document in "file"; JSON requests name a location to fetch.
func (h *ChunkHandler) Chunk(c *gin.Context) {
	opts := h.opts
	var (
		fileType string
		src      agent.Source
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if h.maxUpload > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			handleError(c, h.logger, uploadStatus(err), "Invalid file upload", err)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			handleError(c, h.logger, uploadStatus(err), "Failed to read upload", err)
			return
		}
		fileType = c.PostForm("fileType")
		opts.Title = c.PostForm("title")
		src = agent.FromBytes(header.Filename, data)
	} else {
		var req ChunkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		fileType = req.FileType
		opts.Title = req.Title
		src = agent.FromLocation(req.Location)
	}

	chunks, err := h.chunker.ExtractAndChunk(c.Request.Context(), fileType, src, opts)
	if err != nil {
		handleError(c, h.logger, chunkStatusOf(err), "Failed to chunk document", err)
		return
	}
	c.JSON(http.StatusOK, ChunkResponse{Count: len(chunks), Chunks: chunks})
}

func (h *ChunkHandler) SplitMarkdown(c *gin.Context) {
	var req SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	chunks := h.chunker.SplitMarkdown(c.Request.Context(), req.Content, req.Title)
	c.JSON(http.StatusOK, ChunkResponse{Count: len(chunks), Chunks: chunks})
}

func (h *ChunkHandler) SplitText(c *gin.Context) {
	var req SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	chunks := h.chunker.SplitPlainText(c.Request.Context(), req.Content)
	c.JSON(http.StatusOK, ChunkResponse{Count: len(chunks), Chunks: chunks})
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func chunkStatusOf(err error) int {
	switch {
	case errors.Is(err, agentdoc.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, agentdoc.ErrNoContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fetch.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, fetch.ErrUnsupportedScheme):
		return http.StatusBadRequest
	case errors.Is(err, agentdoc.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
