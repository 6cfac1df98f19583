package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Chronicler error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrFileNotFound       ErrorCode = "FILE_NOT_FOUND"      // 404
	ErrLastVersion        ErrorCode = "LAST_VERSION"        // 409
	ErrInvalidRecord      ErrorCode = "INVALID_RECORD"      // 422
	ErrPersistenceFailed  ErrorCode = "PERSISTENCE_FAILED"  // 500
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE" // 503
	ErrQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"      // 507
)

// ChroniclerError represents a structured error with code, status, and details.
type ChroniclerError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ChroniclerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ChroniclerError {
	return &ChroniclerError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing item or version.
func NewNotFound(kind, identifier string) *ChroniclerError {
	return &ChroniclerError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing backup file.
func NewFileNotFound(path string) *ChroniclerError {
	return &ChroniclerError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewLastVersion creates a 409 error when removing the only version of an item.
func NewLastVersion(itemID string) *ChroniclerError {
	return &ChroniclerError{
		Code:    ErrLastVersion,
		Status:  409,
		Message: "an item must keep at least one version",
		Details: map[string]any{"item_id": itemID},
	}
}

// NewInvalidRecord creates a 422 error for a stored or imported record that cannot be decoded.
func NewInvalidRecord(kind string, err error) *ChroniclerError {
	msg := "invalid record"
	if err != nil {
		msg = fmt.Sprintf("invalid %s record: %v", kind, err)
	}
	return &ChroniclerError{
		Code:    ErrInvalidRecord,
		Status:  422,
		Message: msg,
		Details: map[string]any{"kind": kind},
	}
}

// NewQuotaExceeded creates a 507 error when no storage medium had room for a write.
// The user can free space by deleting items or exporting a backup.
func NewQuotaExceeded(collections []string) *ChroniclerError {
	return &ChroniclerError{
		Code:    ErrQuotaExceeded,
		Status:  507,
		Message: "storage quota exceeded; delete data or export a backup",
		Details: map[string]any{"collections": collections},
	}
}

// NewPersistenceFailed creates a 500 error when both backends rejected a write.
func NewPersistenceFailed(collections []string) *ChroniclerError {
	return &ChroniclerError{
		Code:    ErrPersistenceFailed,
		Status:  500,
		Message: "save failed on every storage backend; reload and retry",
		Details: map[string]any{"collections": collections},
	}
}

// NewBackendUnavailable creates a 503 error for operations that need the primary backend.
func NewBackendUnavailable(msg string) *ChroniclerError {
	return &ChroniclerError{
		Code:    ErrBackendUnavailable,
		Status:  503,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ChroniclerError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ChroniclerError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error (or anything it wraps) is a ChroniclerError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *ChroniclerError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}
