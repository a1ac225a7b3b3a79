package document

import "errors"

var (
	// ErrUnsupportedFormat is fatal for the document and always reaches the caller.
	ErrUnsupportedFormat = errors.New("unsupported file type")

	// ErrTransientExtraction marks a failed stage; the pipeline moves to the next one.
	ErrTransientExtraction = errors.New("extraction stage failed")

	// ErrQualityRejected marks output refused by a quality gate. It is treated as empty.
	ErrQualityRejected = errors.New("extracted text rejected by quality gate")

	// ErrCollaboratorUnavailable is returned when an OCR engine, rasterizer or
	// embedding provider is missing or failing.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrNoContent is the only terminal pipeline failure: every stage came back empty.
	ErrNoContent = errors.New("no content extracted")
)
