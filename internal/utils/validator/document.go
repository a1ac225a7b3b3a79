// Package validator checks uploads before they are stored and queued.
package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-chunker/pkg/logger"
)

const (
	mimeZip  = "application/zip"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePptx = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Validation error codes.
const (
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeInvalidMimeType = "INVALID_MIME_TYPE"
	CodeCorruptFile     = "CORRUPT_FILE"
	CodeImageDimensions = "INVALID_IMAGE_DIMENSIONS"
)

type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize int64
	// AllowedTypes maps an extension to the MIME types its content may
	// sniff as.
	AllowedTypes map[string][]string
	MinDimension int
	MaxDimension int
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e ValidationError) Error() string { return e.Message }

type FileInfo struct {
	Filename  string                 `json:"filename"`
	Size      int64                  `json:"size"`
	MimeType  string                 `json:"mimeType"`
	Extension string                 `json:"extension"`
	Hash      string                 `json:"hash"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// DefaultConfig accepts every format the chunking pipeline can extract.
func DefaultConfig() *ValidatorConfig {
	ooxml := func(m string) []string { return []string{m, mimeZip} }
	img := func(m string) []string { return []string{m} }
	text := []string{"text/plain"}
	return &ValidatorConfig{
		MaxFileSize: 50 << 20,
		AllowedTypes: map[string][]string{
			".pdf":      {"application/pdf"},
			".docx":     ooxml(mimeDocx),
			".pptx":     ooxml(mimePptx),
			".xlsx":     ooxml(mimeXlsx),
			".jpg":      img("image/jpeg"),
			".jpeg":     img("image/jpeg"),
			".png":      img("image/png"),
			".gif":      img("image/gif"),
			".bmp":      img("image/bmp"),
			".webp":     img("image/webp"),
			".tif":      img("image/tiff"),
			".tiff":     img("image/tiff"),
			".txt":      text,
			".text":     text,
			".md":       text,
			".markdown": text,
			".html":     {"text/html"},
			".htm":      {"text/html"},
		},
		MinDimension: 16,
		MaxDimension: 20000,
	}
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if log == nil {
		log = logger.NewNop()
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{logger: log.Named("validator"), config: config}
}

// Allowed reports whether the extension of filename is accepted.
func (v *DocumentValidator) Allowed(filename string) bool {
	_, ok := v.config.AllowedTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, v.config.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	size := file.Size
	if size == 0 {
		size = int64(len(data))
	}
	return v.Validate(file.Filename, size, data), nil
}

// Validate checks data already in memory. size is the declared size and
// may exceed len(data) when the upload was truncated at the limit.
func (v *DocumentValidator) Validate(filename string, size int64, data []byte) *ValidationResult {
	sum := sha256.Sum256(data)
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(filename)),
			Hash:      hex.EncodeToString(sum[:]),
			Metadata:  make(map[string]interface{}),
		},
	}
	result.FileInfo.MimeType = mimetype.Detect(data).String()

	checks := [][]ValidationError{
		v.performBasicValidation(result.FileInfo),
	}
	if result.FileInfo.Size <= v.config.MaxFileSize {
		checks = append(checks,
			v.validateMimeType(result.FileInfo, data),
			v.performTypeSpecificValidation(data, &result.FileInfo),
		)
	}
	for _, errs := range checks {
		if len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	if !result.IsValid {
		v.logger.Debug("File rejected",
			logger.String("filename", filename),
			logger.Any("errors", result.Errors),
		)
	}
	return result
}

// ValidateFiles validates files concurrently and keeps their order.
func (v *DocumentValidator) ValidateFiles(files []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(files))
	var g errgroup.Group
	for i, file := range files {
		g.Go(func() error {
			result, err := v.ValidateFile(file)
			if err != nil {
				return fmt.Errorf("%s: %w", file.Filename, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (v *DocumentValidator) performBasicValidation(info FileInfo) []ValidationError {
	var errs []ValidationError
	if info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}
	if _, ok := v.config.AllowedTypes[info.Extension]; !ok {
		errs = append(errs, ValidationError{
			Code:    CodeInvalidFileType,
			Message: fmt.Sprintf("File type %q is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	return errs
}

// validateMimeType accepts the sniffed type or any of its parents, so a
// Markdown file sniffed as text/plain passes for ".md".
func (v *DocumentValidator) validateMimeType(info FileInfo, data []byte) []ValidationError {
	allowed, ok := v.config.AllowedTypes[info.Extension]
	if !ok {
		return nil
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return nil
			}
		}
	}
	return []ValidationError{{
		Code:    CodeInvalidMimeType,
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", info.MimeType, info.Extension),
		Field:   "mimeType",
	}}
}

func (v *DocumentValidator) performTypeSpecificValidation(data []byte, info *FileInfo) []ValidationError {
	switch info.Extension {
	case ".pdf":
		return validatePDF(data)
	case ".docx", ".pptx", ".xlsx":
		return validateOOXML(data)
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff":
		return v.validateImage(data, info)
	}
	return nil
}

func validatePDF(data []byte) []ValidationError {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return []ValidationError{{Code: CodeCorruptFile, Message: "PDF header missing", Field: "content"}}
	}
	if !bytes.Contains(data[max(0, len(data)-1024):], []byte("%%EOF")) {
		return []ValidationError{{Code: CodeCorruptFile, Message: "PDF trailer missing, file may be truncated", Field: "content"}}
	}
	return nil
}

func validateOOXML(data []byte) []ValidationError {
	if !bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return []ValidationError{{Code: CodeCorruptFile, Message: "Office document is not a zip package", Field: "content"}}
	}
	return nil
}

func (v *DocumentValidator) validateImage(data []byte, info *FileInfo) []ValidationError {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return []ValidationError{{Code: CodeCorruptFile, Message: fmt.Sprintf("Unreadable image: %v", err), Field: "content"}}
	}
	info.Metadata["width"] = cfg.Width
	info.Metadata["height"] = cfg.Height
	info.Metadata["format"] = format

	short, long := min(cfg.Width, cfg.Height), max(cfg.Width, cfg.Height)
	if short < v.config.MinDimension || long > v.config.MaxDimension {
		return []ValidationError{{
			Code:    CodeImageDimensions,
			Message: fmt.Sprintf("Image is %dx%d, sides must be within %d..%d pixels", cfg.Width, cfg.Height, v.config.MinDimension, v.config.MaxDimension),
			Field:   "dimensions",
		}}
	}
	return nil
}

func (v *DocumentValidator) MaxFileSize() int64 { return v.config.MaxFileSize }
