// Package typescript declares TypeScript as a playground language.
//
// There is no transpiler wired in yet, so every run fails with the
// "not supported yet" result. The language still shows up in the picker and
// in /api/languages.
package typescript

import (
	"context"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/capture"
	"github.com/sakif/js-playground/internal/executor"
)

const Language = "typescript"

type Handler struct{}

var _ executor.Handler = Handler{}

func New() Handler { return Handler{} }

func (Handler) Language() string { return Language }

// Execute never touches console.
func (Handler) Execute(context.Context, string, capture.Sink) error {
	return apperror.NotSupportedYet("TypeScript")
}
