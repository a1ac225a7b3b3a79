package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-chunker/api/handlers"
	"github.com/feichai0017/document-chunker/api/middleware"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/metrics"
)

func SetupRoutes(r *gin.Engine, h *handlers.Handlers, log logger.Logger) {
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(log))

	r.GET("/healthz", handlers.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")

	v1.POST("/chunks", h.Chunk.Chunk)
	split := v1.Group("/split")
	{
		split.POST("/markdown", h.Chunk.SplitMarkdown)
		split.POST("/text", h.Chunk.SplitText)
	}

	docs := v1.Group("/documents")
	{
		docs.POST("/process", h.Document.ProcessDocument)
		docs.POST("/location", h.Document.ProcessLocation)
		docs.POST("/batch", h.Document.ProcessBatch)
		docs.GET("/status/:taskId", h.Document.GetStatus)
		docs.GET("/download/:taskId", h.Document.DownloadResult)
		docs.DELETE("/task/:taskId", h.Document.CancelTask)
	}
}
