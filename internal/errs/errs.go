package errs

import (
	"errors"
)

// Code is a harness error code.
type Code string

const (
	// ElementNotVisible means a required element did not become visible in time.
	ElementNotVisible Code = "element_not_visible"
	// LanguageControlNotFound means no language switch mechanism could be located.
	LanguageControlNotFound Code = "language_control_not_found"
	// NoStrategyMatched means every locator strategy in a fallback chain came up empty.
	NoStrategyMatched Code = "no_strategy_matched"
	NavigationFailed  Code = "navigation_failed"
	InvalidArgument   Code = "invalid_argument"
	Unavailable       Code = "unavailable"
	Internal          Code = "internal"
)

// Error is a coded harness error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var coded *Error
		if !errors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Err
	}
	return false
}
