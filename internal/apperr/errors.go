// Package apperr holds the error kinds shared across the persistence stack.
// Callers classify with errors.Is; producers wrap with fmt.Errorf("...: %w").
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")

	// ErrQuotaExceeded means storage capacity is exhausted. Never retried.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrBackendUnavailable is a transient fault of the durable store.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrUnsupported means durable storage cannot exist in this environment.
	ErrUnsupported = errors.New("durable storage unsupported")

	// ErrImportInvalid means an import file is malformed or unrecognized.
	ErrImportInvalid = errors.New("invalid import file")

	ErrSerialization   = errors.New("serialization failed")
	ErrDeserialization = errors.New("deserialization failed")

	// ErrNotLoaded is returned by notebook mutations issued before the
	// initial load has completed.
	ErrNotLoaded = errors.New("notebook not loaded")
)

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// Kind returns a short stable name for the error class of err, used in logs
// and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrImportInvalid):
		return "import_invalid"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrDeserialization):
		return "deserialization"
	case errors.Is(err, ErrNotLoaded):
		return "not_loaded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	}
	return "internal"
}
