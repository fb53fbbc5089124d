package auth

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned when Run is called on a callback that has
// left the idle stage.
var ErrAlreadyStarted = errors.New("auth: callback already started")

// ErrorCode identifies the step that failed.
type ErrorCode string

const (
	CodeMissingConfig       ErrorCode = "missing_config"
	CodeMissingCode         ErrorCode = "missing_code"
	CodeExchangeTimeout     ErrorCode = "exchange_timeout"
	CodeMissingSession      ErrorCode = "missing_session"
	CodeSessionUnauthorized ErrorCode = "session_unauthorized"
	CodeSessionSaveFailed   ErrorCode = "session_save_failed"
	CodeProfileFailed       ErrorCode = "profile_failed"
)

var messages = map[ErrorCode]string{
	CodeMissingConfig:       "Sign-in is temporarily unavailable: the identity provider is not configured.",
	CodeMissingCode:         "The sign-in link is missing its OAuth code. Please start signing in again.",
	CodeExchangeTimeout:     "The identity provider took too long to answer. Please try again.",
	CodeMissingSession:      "The identity provider did not return a session. Please try again.",
	CodeSessionUnauthorized: "Your sign-in was rejected. Please sign in again.",
	CodeSessionSaveFailed:   "We couldn't save your session. Please try again.",
	CodeProfileFailed:       "We couldn't load your profile. Please try again.",
}

// Error is a failed callback run.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Code, e.Err)
	}
	return "auth " + string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the user-facing text for the failure.
func (e *Error) Message() string {
	if m, ok := messages[e.Code]; ok {
		return m
	}
	return "Sign-in failed. Please try again."
}

// CodeOf extracts the failure code from err.
func CodeOf(err error) ErrorCode {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
