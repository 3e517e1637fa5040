// Package executor is the execution core of the playground.
//
// A caller hands the Engine an ExecutionRequest (source code plus a language
// id). The Engine looks the language up in a fixed registry of Handlers,
// invokes the handler exactly once with a fresh capture buffer, and turns
// whatever happened into exactly one ExecutionResult:
//
//	success  → the captured console lines, in call order
//	failure  → a human-readable message (captured output is discarded)
//
// Only two failure kinds exist: the language is unsupported, or the
// submitted program failed at runtime. Both are ordinary results, never Go
// errors. A Go error from Execute means the engine itself could not do its
// job (a sandbox was unavailable, the caller's context ended while queued).
package executor

import (
	"context"
	"time"

	"github.com/sakif/js-playground/internal/capture"
)

// Status is the top-level outcome of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// FailureKind classifies a failed execution.
type FailureKind string

const (
	KindUnsupportedLanguage FailureKind = "unsupported_language"
	KindRuntimeFailure      FailureKind = "runtime_failure"
)

// ExecutionRequest is created fresh for every run and never mutated.
type ExecutionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ExecutionResult is the single outcome of one ExecutionRequest.
type ExecutionResult struct {
	Status   Status         `json:"status"`
	Language string         `json:"language"`
	Output   []string       `json:"output"`
	Lines    []capture.Line `json:"lines,omitempty"`
	Error    string         `json:"error,omitempty"`
	Kind     FailureKind    `json:"kind,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// OK reports whether the execution succeeded.
func (r *ExecutionResult) OK() bool {
	return r.Status == StatusSuccess
}

// Text renders the captured output with one newline-terminated line per
// diagnostic call. It is empty for failures.
func (r *ExecutionResult) Text() string {
	return capture.Text(r.Lines)
}

// Handler runs source code for one language.
//
// Execute must write every diagnostic call to console and must not retain
// console after it returns. Return values:
//
//	nil                                  → success
//	apperror wrapping ErrRuntime         → the program failed
//	apperror wrapping ErrUnsupportedLanguage → declared but not runnable
//	anything else                        → infrastructure fault
type Handler interface {
	Language() string
	Execute(ctx context.Context, source string, console capture.Sink) error
}

// Executor is what transports (HTTP, CLI) depend on.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
	Languages() []string
}

// Recorder receives one observation per finished execution.
type Recorder interface {
	ObserveExecution(language, outcome string, d time.Duration)
}
