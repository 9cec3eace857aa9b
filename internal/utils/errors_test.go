package utils

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"taskdesk/backend"
)

// =============================================================================
// Error Tests
// =============================================================================

// TestErrorWithSuggestionError verifies Error() method output
func TestErrorWithSuggestionError(t *testing.T) {
	err := &ErrorWithSuggestion{
		Err:        errors.New("something went wrong"),
		Suggestion: "Try doing X",
	}

	errStr := err.Error()
	for _, want := range []string{"something went wrong", "Suggestion:", "Try doing X"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("Error() should contain %q, got: %s", want, errStr)
		}
	}
	if err.GetSuggestion() != "Try doing X" {
		t.Errorf("GetSuggestion() = %s, want 'Try doing X'", err.GetSuggestion())
	}
}

// TestErrorWithSuggestionUnwrap verifies Unwrap() for error chain
func TestErrorWithSuggestionUnwrap(t *testing.T) {
	underlying := &backend.NotFoundError{ID: 3}
	err := WrapWithSuggestion(underlying, "suggestion")

	if !errors.Is(err, backend.ErrNotFound) {
		t.Error("wrapped error should still match backend.ErrNotFound")
	}
}

// TestExplain verifies each backend error category gets a suggestion
func TestExplain(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", &backend.NotFoundError{ID: 7}, "taskdesk list"},
		{"unauthorized", &backend.ServerError{Op: "get tasks", StatusCode: 401}, "taskdesk login"},
		{"server error", &backend.ServerError{Op: "get tasks", StatusCode: 500}, "try again later"},
		{"connection refused", &backend.NetworkError{Op: "get tasks", Err: errors.New("dial tcp: connection refused")}, "api.base_url"},
		{"timeout", &backend.NetworkError{Op: "get tasks", Err: errors.New("i/o timeout")}, "api.timeout"},
		{"validation", &backend.ValidationError{Field: "expiryDate", Value: "soon", Reason: "bad"}, "ISO date"},
		{"wrapped", fmt.Errorf("show: %w", &backend.NotFoundError{ID: 1}), "taskdesk list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Explain(tt.err)
			var ews *ErrorWithSuggestion
			if !errors.As(got, &ews) {
				t.Fatalf("Explain() should return ErrorWithSuggestion, got %T", got)
			}
			if !strings.Contains(ews.Suggestion, tt.want) {
				t.Errorf("suggestion %q should contain %q", ews.Suggestion, tt.want)
			}
		})
	}
}

// TestExplainPassThrough verifies unknown and already-explained errors are unchanged
func TestExplainPassThrough(t *testing.T) {
	if Explain(nil) != nil {
		t.Error("Explain(nil) should be nil")
	}

	plain := errors.New("plain")
	if Explain(plain) != plain {
		t.Error("unknown errors should be returned unchanged")
	}

	explained := ErrNotLoggedIn()
	if Explain(explained) != explained {
		t.Error("errors that already carry a suggestion should be returned unchanged")
	}
}
