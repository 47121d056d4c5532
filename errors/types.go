// Package errors defines the coded errors shared across cryoview.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Fetch errors surfaced by views
	ErrCodeAuthFailure           ErrorCode = "AUTH_FAILURE"
	ErrCodeTransientFetchFailure ErrorCode = "TRANSIENT_FETCH_FAILURE"

	// Notification errors, never surfaced to users
	ErrCodeMalformedEvent          ErrorCode = "MALFORMED_EVENT"
	ErrCodeDuplicateOrOutOfOrder   ErrorCode = "DUPLICATE_OR_OUT_OF_ORDER_EVENT"
	ErrCodeNotificationChannelDown ErrorCode = "NOTIFICATION_CHANNEL_DOWN"

	// Backend errors
	ErrCodeBackendHTTP ErrorCode = "BACKEND_HTTP"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"

	// View errors
	ErrCodeUnknownCollection ErrorCode = "UNKNOWN_COLLECTION"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION"
	ErrCodeUnknownCategory   ErrorCode = "UNKNOWN_CATEGORY"
	ErrCodeViewStopped       ErrorCode = "VIEW_STOPPED"

	// General errors
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// Error is a coded error. Details are shown with --verbose; Cause is kept
// for unwrapping but never serialized.
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the UI should offer a retry affordance.
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrCodeAuthFailure, ErrCodeTransientFetchFailure, ErrCodeNotificationChannelDown:
		return true
	}
	return false
}

// ToJSON renders the error for verbose CLI output.
func (e *Error) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap attaches code and message to err.
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether any Error in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode returns the code of the outermost Error in err's chain, or "".
func GetCode(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// As returns the outermost Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
