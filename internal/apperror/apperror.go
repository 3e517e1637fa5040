// Package apperror defines the domain errors shared by every layer.
//
// Each AppError wraps one sentinel so callers classify with errors.Is and
// read the human-readable text with errors.As.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrRuntime             = errors.New("runtime failure")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// UnsupportedLanguage reports a language id with no registered handler.
func UnsupportedLanguage(language string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedLanguage,
		Message: fmt.Sprintf("unsupported language %q", language),
		Field:   "language",
	}
}

// NotSupportedYet reports a language that is declared but has no runtime.
// display is the user-facing language name, e.g. "TypeScript".
func NotSupportedYet(display string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedLanguage,
		Message: fmt.Sprintf("%s is not supported yet", display),
		Field:   "language",
	}
}

// RuntimeFailure reports that the submitted program itself failed.
// An empty message is replaced so a failure is never blank.
func RuntimeFailure(message string) *AppError {
	if message == "" {
		message = "execution failed"
	}
	return &AppError{
		Err:     ErrRuntime,
		Message: message,
	}
}
