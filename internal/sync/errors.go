package sync

import (
	"errors"
	"fmt"

	"github.com/jgchk/blog-sub001/internal/status"
)

// ErrorKind classifies failures raised while accepting or running a sync
type ErrorKind string

const (
	// Request intake
	ErrorKindSignatureInvalid ErrorKind = "signature_invalid"
	ErrorKindPayloadInvalid   ErrorKind = "payload_invalid"

	// Pipeline stages
	ErrorKindFetch        ErrorKind = "fetch_error"
	ErrorKindParse        ErrorKind = "parse_error"
	ErrorKindRender       ErrorKind = "render_error"
	ErrorKindStorage      ErrorKind = "storage_error"
	ErrorKindInvalidation ErrorKind = "invalidation_error"
	ErrorKindNotification ErrorKind = "notification_error"
	ErrorKindInternal     ErrorKind = "internal_error"
)

// ErrSyncInProgress is returned by Sync while another run holds the orchestrator
var ErrSyncInProgress = errors.New("a sync is already in progress")

// Error represents a sync failure with its classification
type Error struct {
	Kind ErrorKind
	// Slug is the article the error belongs to, empty for run level errors
	Slug string
	Err  error
}

func (e *Error) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Slug, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PerArticle reports whether the error is isolated to one article
func (e *Error) PerArticle() bool {
	return e.Slug != ""
}

// StatusKind maps the kind onto the tracker's error classification
func (k ErrorKind) StatusKind() status.ErrorKind {
	switch k {
	case ErrorKindParse:
		return status.ErrorKindParse
	case ErrorKindRender:
		return status.ErrorKindRender
	case ErrorKindStorage:
		return status.ErrorKindStorage
	case ErrorKindFetch:
		return status.ErrorKindFetch
	case ErrorKindInvalidation:
		return status.ErrorKindInvalidation
	default:
		return status.ErrorKindUnknown
	}
}

// statusError converts err into a tracker error entry
func statusError(err error) status.SyncError {
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return status.SyncError{
			ArticleSlug: syncErr.Slug,
			Kind:        syncErr.Kind.StatusKind(),
			Message:     syncErr.Err.Error(),
		}
	}
	return status.SyncError{Kind: status.ErrorKindUnknown, Message: err.Error()}
}
