package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")
	ErrUnavailable    = errors.New("server unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Capture pipeline errors.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrNoActiveStream    = errors.New("no active stream")
	ErrEncoding          = errors.New("frame encoding error")

	// Remote collaborator errors.
	ErrUpload          = errors.New("upload error")
	ErrStore           = errors.New("record store error")
	ErrDraftGeneration = errors.New("failed to generate draft")
)

// UploadError is returned by the submission transport. Message holds the most
// specific text available: the server-supplied message, else the raw response
// body, else a generic network failure message.
type UploadError struct {
	Status  int
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upload failed (status %d): %s", e.Status, e.Message)
	}
	return "upload failed: " + e.Message
}

func (e *UploadError) Unwrap() error { return e.Err }

// Is reports ErrUpload so callers can match every transport failure at once.
func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// StoreError wraps a failure of the backing object store. Code is the remote
// error code (HTTP status for S3, SQLSTATE-less 0 for SQL backends) reported
// as-is.
type StoreError struct {
	Op   string
	Code int
	Err  error
}

func (e *StoreError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("store %s (code %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// NewStoreError is a shorthand used by the backends.
func NewStoreError(op string, code int, err error) error {
	return &StoreError{Op: op, Code: code, Err: err}
}
