package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-chunker/internal/agent"
	"github.com/feichai0017/document-chunker/internal/service/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	Chunk    *ChunkHandler
}

func NewHandlers(
	documentService document.DocumentProcessor,
	chunker Chunker,
	opts agent.Options,
	maxUpload int64,
	log logger.Logger,
) *Handlers {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("api")
	return &Handlers{
		Document: NewDocumentHandler(documentService, log),
		Chunk:    NewChunkHandler(chunker, opts, maxUpload, log),
	}
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
