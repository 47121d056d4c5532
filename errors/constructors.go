package errors

import (
	"fmt"
)

// AuthFailureMessage is the fixed explanation shown for authentication failures.
const AuthFailureMessage = "authentication failed: check the configured credentials and retry"

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// AuthFailure creates an authentication failure. The message is fixed; the
// backend's own explanation is kept as the cause.
func AuthFailure(cause error) *Error {
	return Wrap(cause, ErrCodeAuthFailure, AuthFailureMessage)
}

// TransientFetchFailure wraps a failed snapshot fetch. The message is taken
// from the underlying error so the UI can show it verbatim.
func TransientFetchFailure(cause error) *Error {
	msg := "fetch failed"
	if cause != nil {
		msg = cause.Error()
	}
	return Wrap(cause, ErrCodeTransientFetchFailure, msg)
}

// MalformedEvent describes a notification payload that failed validation or parsing.
func MalformedEvent(category string, cause error) *Error {
	return Wrap(cause, ErrCodeMalformedEvent, fmt.Sprintf("malformed %s notification", category)).
		WithDetail("category", category)
}

// BackendHTTP creates an error for a non-success backend response.
func BackendHTTP(status int, method, path, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("%s %s returned status %d", method, path, status)
	}
	return New(ErrCodeBackendHTTP, message).
		WithDetail("status", status).
		WithDetail("method", method).
		WithDetail("path", path)
}

// UnknownCollection creates an error for an unregistered collection name.
func UnknownCollection(name string) *Error {
	return New(ErrCodeUnknownCollection, fmt.Sprintf("unknown collection '%s'", name)).
		WithDetail("collection", name)
}

// UnknownAction creates an error for an action the view does not offer.
func UnknownAction(view, action string) *Error {
	return New(ErrCodeUnknownAction, fmt.Sprintf("view '%s' has no action '%s'", view, action)).
		WithDetail("view", view).
		WithDetail("action", action)
}

// UnknownCategory creates an error for a filter category the view does not define.
func UnknownCategory(category string) *Error {
	return New(ErrCodeUnknownCategory, fmt.Sprintf("unknown filter category '%s'", category)).
		WithDetail("category", category)
}
