package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "validation with code",
			err:      New(ErrDataValidation, "reconcile.Validate", CodeTableAlreadyExists, Subject("table", "sales"), ""),
			expected: "reconcile.Validate: data validation failed [TABLE_ALREADY_EXISTS] table=sales",
		},
		{
			name:     "wrapped cause",
			err:      Wrap(ErrInvalidOperation, "query.RunQuery", "", errors.New("connection reset")),
			expected: "query.RunQuery: invalid operation: connection reset",
		},
		{
			name:     "message",
			err:      New(ErrQueryExecution, "query.RunQuery", "", Subject("job", "q-1", "table", ""), "SYNTAX_ERROR"),
			expected: "query.RunQuery: query execution failed job=q-1: SYNTAX_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorIsKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(ErrQueryTimeout, "query.RunQuery", "", cause))

	if !errors.Is(err, ErrQueryTimeout) {
		t.Error("expected kind to match through wrapping")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to match through wrapping")
	}
	if errors.Is(err, ErrQueryExecution) {
		t.Error("unexpected kind match")
	}
}

func TestCodesThroughJoin(t *testing.T) {
	joined := errors.Join(
		New(ErrDataValidation, "op", CodeTableAlreadyExists, "", ""),
		New(ErrDataValidation, "op", CodeTableDoesNotExist, "", ""),
	)

	codes := Codes(joined)
	if len(codes) != 2 || codes[0] != CodeTableAlreadyExists || codes[1] != CodeTableDoesNotExist {
		t.Errorf("Codes() = %v", codes)
	}
	if CodeOf(joined) != CodeTableAlreadyExists {
		t.Errorf("CodeOf() = %v", CodeOf(joined))
	}
	if !errors.Is(joined, ErrDataValidation) {
		t.Error("expected joined error to match kind")
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Error("nil is not fatal")
	}
	if IsFatal(Wrap(ErrDataNotFound, "op", "", nil)) {
		t.Error("not-found is a signal, not a failure")
	}
	if !IsFatal(Wrap(ErrInvalidOperation, "op", "", nil)) {
		t.Error("invalid operation is fatal")
	}
}
