package content

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes user-visible failures of content operations.
type ErrorCode string

const (
	// ErrCodeValidationFailed indicates data does not match the content type schema.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrCodePermissionDenied indicates the caller may not perform the action.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrCodeNotFound indicates there is no stream (or a tombstoned one) for the id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeVersionConflict indicates the caller's expected version is stale.
	ErrCodeVersionConflict ErrorCode = "VERSION_CONFLICT"

	// ErrCodeIdempotencyConflict indicates the idempotency key was already used.
	ErrCodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"
)

// FieldError is a per-field validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a content operation failure with a machine-readable code.
type Error struct {
	Code      ErrorCode
	Message   string
	ContentID string
	Fields    []FieldError
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.ContentID != "" {
		fmt.Fprintf(&b, " (content=%s)", e.ContentID)
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "; %s: %s", f.Field, f.Message)
	}
	return b.String()
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsNotFound returns true if err is a NOT_FOUND content error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsVersionConflict returns true if err is a VERSION_CONFLICT content error.
func IsVersionConflict(err error) bool { return CodeOf(err) == ErrCodeVersionConflict }

// IsPermissionDenied returns true if err is a PERMISSION_DENIED content error.
func IsPermissionDenied(err error) bool { return CodeOf(err) == ErrCodePermissionDenied }

// IsValidationFailed returns true if err is a VALIDATION_FAILED content error.
func IsValidationFailed(err error) bool { return CodeOf(err) == ErrCodeValidationFailed }

// IsIdempotencyConflict returns true if err is an IDEMPOTENCY_CONFLICT content error.
func IsIdempotencyConflict(err error) bool { return CodeOf(err) == ErrCodeIdempotencyConflict }

// NewNotFound creates an error for a missing stream.
func NewNotFound(id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "content not found", ContentID: id}
}

// NewVersionConflict creates an error for a stale expected version.
func NewVersionConflict(id string, expected, actual int64) *Error {
	return &Error{
		Code:      ErrCodeVersionConflict,
		Message:   fmt.Sprintf("content was modified by another user (expected version %d, current version %d)", expected, actual),
		ContentID: id,
	}
}

// NewPermissionDenied creates an error for a denied action.
func NewPermissionDenied(userID, contentType, action string) *Error {
	return &Error{
		Code:    ErrCodePermissionDenied,
		Message: fmt.Sprintf("user %q may not %s %q content", userID, strings.ToLower(action), contentType),
	}
}

// NewValidationFailed creates an error carrying per-field messages.
func NewValidationFailed(contentType string, fields []FieldError) *Error {
	return &Error{
		Code:    ErrCodeValidationFailed,
		Message: fmt.Sprintf("data does not match content type %q", contentType),
		Fields:  fields,
	}
}

// NewIdempotencyConflict creates an error for a reused idempotency key.
func NewIdempotencyConflict(key string) *Error {
	return &Error{
		Code:    ErrCodeIdempotencyConflict,
		Message: fmt.Sprintf("request with idempotency key %q was already processed", key),
	}
}
