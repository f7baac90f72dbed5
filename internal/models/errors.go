package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks requests rejected before any external call.
	ErrValidation = errors.New("validation error")
	// ErrAuth marks a missing or invalid caller identity.
	ErrAuth = errors.New("authentication failed")
	// ErrUnsupportedFormat is returned for declared formats outside pdf, doc and docx.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExternalService wraps failures of the classifier, extractor or remote store.
	ErrExternalService = errors.New("external service error")
	// ErrPersistence wraps record store failures.
	ErrPersistence = errors.New("persistence error")
	// ErrRecordNotFound is returned by record lookups that find nothing.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateRecord is returned when a record already exists for a remote file id.
	ErrDuplicateRecord = errors.New("record already exists for remote file")
	// ErrBatchInProgress is returned when a reconciliation run is already active.
	ErrBatchInProgress = errors.New("batch reconciliation already in progress")
)

// Reasons kept on NotFoundOrForbiddenError for logging only.
const (
	ReasonNotFound  = "not_found"
	ReasonForbidden = "forbidden"
)

// NotFoundOrForbiddenError is reported for both a missing file and a file the caller
// does not own. Error() is identical in both cases; Reason is for logs.
type NotFoundOrForbiddenError struct {
	FileID string
	Reason string
}

func (e *NotFoundOrForbiddenError) Error() string {
	return "file not found or permission denied"
}

// NotFound builds the error for a file that does not exist.
func NotFound(fileID string) error {
	return &NotFoundOrForbiddenError{FileID: fileID, Reason: ReasonNotFound}
}

// Forbidden builds the error for a file owned by someone else.
func Forbidden(fileID string) error {
	return &NotFoundOrForbiddenError{FileID: fileID, Reason: ReasonForbidden}
}

// IsNotFoundOrForbidden reports whether err is, or wraps, a NotFoundOrForbiddenError.
func IsNotFoundOrForbidden(err error) bool {
	var nf *NotFoundOrForbiddenError
	return errors.As(err, &nf)
}

// Validationf builds an ErrValidation with a message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
