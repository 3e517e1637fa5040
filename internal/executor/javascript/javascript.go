// Package javascript runs JavaScript in an embedded goja VM.
//
// Every execution gets a brand-new goja.Runtime, so nothing a program defines
// survives into the next run. The VM is stripped of module/process globals and
// its console object writes straight into the capture sink handed in by the
// Engine.
//
// CAPTURE WINDOW:
// Output is captured while the script body runs and while the promise job
// queue drains (goja drains it before RunString returns). Timer callbacks
// are accepted but never fire:
//
//	console.log("a")                          // captured
//	Promise.resolve().then(() => console.log("b")) // captured
//	setTimeout(() => console.log("c"), 0)     // never runs
package javascript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/capture"
	"github.com/sakif/js-playground/internal/executor"
)

// Language is the registry key of this handler.
const Language = "javascript"

// Config tunes the VM.
type Config struct {
	// MaxCallStackSize bounds recursion depth inside the VM.
	MaxCallStackSize int
}

// DefaultConfig returns the VM limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{MaxCallStackSize: 1024}
}

// Handler implements executor.Handler with goja.
type Handler struct {
	config Config
	logger *slog.Logger
}

var _ executor.Handler = (*Handler)(nil)

// New creates a goja-backed handler.
func New(cfg Config, logger *slog.Logger) *Handler {
	return &Handler{config: cfg, logger: logger}
}

// Language implements executor.Handler.
func (h *Handler) Language() string {
	return Language
}

// Execute runs source to completion, or until ctx ends.
func (h *Handler) Execute(ctx context.Context, source string, console capture.Sink) error {
	start := time.Now()
	r := newRun(h.config, console)

	// Stop the VM from another goroutine when the budget runs out.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	_, err := r.vm.RunString(source)

	if r.droppedTimers > 0 {
		h.logger.Debug("deferred callbacks were not run",
			slog.Int("count", r.droppedTimers),
		)
	}

	if err != nil {
		return r.failure(err, time.Since(start))
	}

	if msg, ok := r.unhandledRejection(); ok {
		return apperror.RuntimeFailure(msg)
	}
	return nil
}

// run is the state of one execution.
type run struct {
	vm            *goja.Runtime
	console       capture.Sink
	rejected      []*goja.Promise
	droppedTimers int
	// toString is the built-in String, taken before user code can replace it.
	toString goja.Callable
}

func newRun(cfg Config, console capture.Sink) *run {
	r := &run{vm: goja.New(), console: console}
	if cfg.MaxCallStackSize > 0 {
		r.vm.SetMaxCallStackSize(cfg.MaxCallStackSize)
	}
	r.vm.SetPromiseRejectionTracker(r.trackRejection)
	r.toString, _ = goja.AssertFunction(r.vm.Get("String"))
	r.setupGlobals()
	return r
}

func (r *run) setupGlobals() {
	// No host access from inside the playground.
	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = r.vm.Set(name, goja.Undefined())
	}

	console := r.vm.NewObject()
	for _, level := range []string{
		capture.LevelLog,
		capture.LevelInfo,
		capture.LevelWarn,
		capture.LevelError,
		capture.LevelDebug,
	} {
		_ = console.Set(level, r.consoleFunc(level))
	}
	_ = r.vm.Set("console", console)

	for _, name := range []string{"setTimeout", "setInterval", "setImmediate"} {
		_ = r.vm.Set(name, func(goja.FunctionCall) goja.Value {
			r.droppedTimers++
			return r.vm.ToValue(0)
		})
	}
	for _, name := range []string{"clearTimeout", "clearInterval", "clearImmediate"} {
		_ = r.vm.Set(name, func(goja.FunctionCall) goja.Value {
			return goja.Undefined()
		})
	}
}

// consoleFunc stringifies every argument and writes one line to the sink.
func (r *run) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = r.stringify(arg)
		}
		if err := r.console.Log(level, args...); err != nil {
			// Uncatchable from JS: the run ends at the next instruction.
			r.vm.Interrupt(err)
		}
		return goja.Undefined()
	}
}

// stringify follows String(value). Value.String() matches it for
// everything but symbols, which print as their bare description.
func (r *run) stringify(v goja.Value) string {
	if _, ok := v.(*goja.Symbol); ok && r.toString != nil {
		if s, err := r.toString(goja.Undefined(), v); err == nil {
			return s.String()
		}
	}
	return v.String()
}

func (r *run) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		r.rejected = append(r.rejected, p)
	case goja.PromiseRejectionHandle:
		for i, q := range r.rejected {
			if q == p {
				r.rejected = append(r.rejected[:i], r.rejected[i+1:]...)
				break
			}
		}
	}
}

// unhandledRejection reports the first rejection nobody handled.
func (r *run) unhandledRejection() (string, bool) {
	if len(r.rejected) == 0 {
		return "", false
	}
	return "Uncaught (in promise) " + r.message(r.rejected[0].Result()), true
}

// failure turns a RunString error into the error the Engine expects.
func (r *run) failure(err error, elapsed time.Duration) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch v := interrupted.Value().(type) {
		case error:
			switch {
			case errors.Is(v, context.DeadlineExceeded):
				return apperror.RuntimeFailure(fmt.Sprintf("execution timed out after %s", elapsed.Round(time.Millisecond)))
			case errors.Is(v, context.Canceled):
				return apperror.RuntimeFailure("execution cancelled")
			}
			return apperror.RuntimeFailure(v.Error())
		default:
			return apperror.RuntimeFailure(fmt.Sprintf("execution interrupted: %v", v))
		}
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return apperror.RuntimeFailure(r.message(exc.Value()))
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return apperror.RuntimeFailure(syntax.Error())
	}

	return apperror.RuntimeFailure(err.Error())
}

// message mirrors what a browser shows for `error.message`: the message
// property when the thrown value has one, otherwise String(value).
func (r *run) message(v goja.Value) (msg string) {
	if v == nil {
		return "undefined"
	}
	// A throwing getter or toString must not take the host down.
	defer func() {
		if recover() != nil {
			msg = "uncaught exception"
		}
	}()

	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
			msg = m.String()
		}
	}
	if msg == "" {
		msg = r.stringify(v)
	}
	return msg
}
