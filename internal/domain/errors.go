package domain

import "fmt"

// Kind classifies pipeline errors
type Kind string

const (
	KindDuplicateRun    Kind = "duplicate_run"
	KindRendering       Kind = "rendering"
	KindManifest        Kind = "manifest"
	KindMissingArtifact Kind = "missing_artifact"
	KindExtraction      Kind = "extraction"
	KindDecode          Kind = "decode"
	KindValidation      Kind = "validation"
	KindReconciliation  Kind = "reconciliation"
	KindPersistence     Kind = "persistence"
	KindConfig          Kind = "config"
)

// Error represents a pipeline error with its classification
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new classified error
func NewError(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func DuplicateRunError(message string) *Error {
	return NewError(KindDuplicateRun, message, nil)
}

func RenderingError(message string, err error) *Error {
	return NewError(KindRendering, message, err)
}

func ManifestError(message string, err error) *Error {
	return NewError(KindManifest, message, err)
}

func MissingArtifactError(message string) *Error {
	return NewError(KindMissingArtifact, message, nil)
}

func ExtractionError(message string, err error) *Error {
	return NewError(KindExtraction, message, err)
}

func DecodeError(message string, err error) *Error {
	return NewError(KindDecode, message, err)
}

func ValidationError(message string, err error) *Error {
	return NewError(KindValidation, message, err)
}

func ReconciliationError(message string, err error) *Error {
	return NewError(KindReconciliation, message, err)
}

func PersistenceError(message string, err error) *Error {
	return NewError(KindPersistence, message, err)
}

func ConfigError(message string, err error) *Error {
	return NewError(KindConfig, message, err)
}

// KindOf returns the classification of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Retryable reports whether retrying err could change the outcome.
// Deterministic failures (schema decode, validation, reconciliation, a held
// lease, a manifest that will not reappear) are never retried; everything
// else, including unclassified transport errors and timeouts, is assumed
// transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindReconciliation, KindDecode,
		KindDuplicateRun, KindManifest, KindMissingArtifact, KindConfig:
		return false
	default:
		return true
	}
}
