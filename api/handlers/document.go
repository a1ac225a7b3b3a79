package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-chunker/internal/models"
	"github.com/feichai0017/document-chunker/internal/service/document"
	"github.com/feichai0017/document-chunker/pkg/logger"
	"github.com/feichai0017/document-chunker/pkg/queue"
)

type DocumentHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	CreatedAt string `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LocationRequest queues a document by location instead of upload.
type LocationRequest struct {
	Location string `json:"location" binding:"required"`
	FileType string `json:"fileType"`
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{service: service, logger: log}
}

func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	task, err := h.service.ProcessFile(c.Request.Context(), file, header)
	if err != nil {
		h.handleError(c, statusOf(err), "Failed to process file", err)
		return
	}
	c.JSON(http.StatusAccepted, newProcessResponse(task, header.Filename, header.Size))
}

func (h *DocumentHandler) ProcessLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	task, err := h.service.ProcessLocation(c.Request.Context(), req.Location, req.FileType)
	if err != nil {
		h.handleError(c, statusOf(err), "Failed to queue location", err)
		return
	}
	c.JSON(http.StatusAccepted, newProcessResponse(task, task.Metadata["filename"], 0))
}

func (h *DocumentHandler) ProcessBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	tasks, err := h.service.ProcessBatch(c.Request.Context(), files)
	if err != nil && len(tasks) == 0 {
		h.handleError(c, statusOf(err), "Failed to process files", err)
		return
	}

	responses := make([]ProcessResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = newProcessResponse(task, task.Metadata["filename"], 0)
	}
	body := gin.H{
		"message": fmt.Sprintf("Processing %d of %d documents", len(tasks), len(files)),
		"tasks":   responses,
	}
	if err != nil {
		body["error"] = err.Error()
		c.JSON(http.StatusMultiStatus, body)
		return
	}
	c.JSON(http.StatusAccepted, body)
}

func (h *DocumentHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	task, err := h.service.GetProcessingStatus(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusOf(err), "Failed to get status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *DocumentHandler) DownloadResult(c *gin.Context) {
	taskID := c.Param("taskId")
	result, err := h.service.GetProcessedDocument(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusOf(err), "Failed to get result", err)
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to serialize result", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=result_%s.json", taskID))
	c.Data(http.StatusOK, "application/json", resultJSON)
}

func (h *DocumentHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleError(c, statusOf(err), "Failed to cancel task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

func newProcessResponse(task *models.ProcessingTask, filename string, size int64) ProcessResponse {
	return ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  filename,
		FileSize:  size,
		FileType:  filepath.Ext(filename),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}
}

func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	handleError(c, h.logger, status, message, err)
}

func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	fields := []logger.Field{logger.String("path", c.Request.URL.Path), logger.Int("status", status)}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, response)
}

// statusOf maps service and pipeline errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, document.ErrInvalidFile), errors.Is(err, document.ErrInvalidTask):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrNotCompleted):
		return http.StatusConflict
	default:
		return chunkStatusOf(err)
	}
}
