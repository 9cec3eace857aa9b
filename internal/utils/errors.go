package utils

import (
	"errors"
	"fmt"
	"strings"

	"taskdesk/backend"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrInvalidTaskID returns an error for an id argument that is not a positive integer.
func ErrInvalidTaskID(arg string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid task id: %s", arg),
		Suggestion: "Task ids are positive integers; run 'taskdesk list' to see them",
	}
}

// ErrNotLoggedIn returns an error when no API token can be found.
func ErrNotLoggedIn() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("not logged in"),
		Suggestion: "Run 'taskdesk login' or set TASKDESK_API_TOKEN",
	}
}

// ErrTokenExpired returns an error when the stored token has expired.
func ErrTokenExpired() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("API token has expired"),
		Suggestion: "Run 'taskdesk login' to store a fresh token",
	}
}

// Explain attaches a suggestion to errors coming out of the store and API client.
// Errors it does not recognise are returned unchanged.
func Explain(err error) error {
	if err == nil {
		return nil
	}

	var suggestion *ErrorWithSuggestion
	if errors.As(err, &suggestion) {
		return err
	}

	var notFound *backend.NotFoundError
	if errors.As(err, &notFound) {
		return WrapWithSuggestion(err, "The local cache may be stale; run 'taskdesk list' to refresh it")
	}

	var serverErr *backend.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.IsUnauthorized() {
			return WrapWithSuggestion(err, "Verify your token with 'taskdesk login'")
		}
		return WrapWithSuggestion(err, "The tasks API rejected the request; try again later")
	}

	var netErr *backend.NetworkError
	if errors.As(err, &netErr) {
		return WrapWithSuggestion(err, getSmartSuggestion(netErr.Err.Error()))
	}

	var validationErr *backend.ValidationError
	if errors.As(err, &validationErr) {
		return WrapWithSuggestion(err, "Use an ISO date such as 2026-01-15 or 2026-01-15T09:30:00Z")
	}

	return err
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and the api.base_url setting"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the tasks API is running and api.base_url points at it"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later or raise api.timeout"
	}

	if strings.Contains(lowerReason, "certificate") || strings.Contains(lowerReason, "x509") {
		return "The server certificate is not trusted; check api.base_url"
	}

	return "Check your internet connection and try again"
}
