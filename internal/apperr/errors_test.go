package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("storage: put: %w", ErrQuotaExceeded), "quota_exceeded"},
		{fmt.Errorf("wrap: %w", ErrBackendUnavailable), "backend_unavailable"},
		{ErrUnsupported, "unsupported"},
		{ErrImportInvalid, "import_invalid"},
		{ErrDeserialization, "deserialization"},
		{fmt.Errorf("notebook: add source: %w", ErrInvalid), "invalid"},
		{errors.New("boom"), "internal"},
	}
	for _, c := range cases {
		if got := Kind(c.err); got != c.want {
			t.Errorf("Kind(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("x: %w", ErrBackendUnavailable)) {
		t.Error("backend unavailable should be retryable")
	}
	if Retryable(ErrQuotaExceeded) {
		t.Error("quota exceeded must not be retryable")
	}
	if Retryable(ErrUnsupported) {
		t.Error("unsupported must not be retryable")
	}
}
