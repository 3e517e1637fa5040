package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/capture"
)

// Config bounds every execution the Engine performs.
type Config struct {
	// Timeout is the wall-clock budget of one execution.
	Timeout time.Duration
	// MaxConcurrent is how many executions may run at the same time.
	MaxConcurrent int
	// MaxOutputBytes caps the captured output of one execution.
	MaxOutputBytes int
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:        5 * time.Second,
		MaxConcurrent:  4,
		MaxOutputBytes: 1 << 20,
	}
}

// Engine owns the language registry and runs requests against it.
type Engine struct {
	handlers map[string]Handler
	config   Config
	logger   *slog.Logger
	fallback capture.Sink
	slots    *semaphore.Weighted
	recorder Recorder
}

var _ Executor = (*Engine)(nil)

// Option customises an Engine.
type Option func(*Engine)

// WithRecorder sends per-execution observations to r (e.g. Prometheus).
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithFallbackSink sets where console writes go once a run has finished.
// By default they are logged through the engine's logger.
func WithFallbackSink(s capture.Sink) Option {
	return func(e *Engine) { e.fallback = s }
}

// NewEngine builds an Engine with a fixed set of handlers. Language ids are
// matched exactly, so "JavaScript" and "javascript" are different keys.
func NewEngine(cfg Config, logger *slog.Logger, handlers []Handler, opts ...Option) (*Engine, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}

	e := &Engine{
		handlers: make(map[string]Handler, len(handlers)),
		config:   cfg,
		logger:   logger,
		fallback: capture.SlogSink{Logger: logger},
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, h := range handlers {
		lang := h.Language()
		if lang == "" {
			return nil, errors.New("executor: handler with empty language id")
		}
		if _, dup := e.handlers[lang]; dup {
			return nil, fmt.Errorf("executor: duplicate handler for language %q", lang)
		}
		e.handlers[lang] = h
	}

	return e, nil
}

// Languages returns the registered language ids, sorted.
func (e *Engine) Languages() []string {
	langs := make([]string, 0, len(e.handlers))
	for l := range e.handlers {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Supports reports whether language has a registered handler.
func (e *Engine) Supports(language string) bool {
	_, ok := e.handlers[language]
	return ok
}

// Execute runs one request and produces exactly one result.
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	start := time.Now()

	h, ok := e.handlers[req.Language]
	if !ok {
		res := failure(req.Language, apperror.UnsupportedLanguage(req.Language), KindUnsupportedLanguage, time.Since(start))
		e.finish(res)
		return res, nil
	}

	// One slot per execution; queued callers give up with their context.
	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("executor: waiting for an execution slot: %w", err)
	}
	defer e.slots.Release(1)

	lines, err := e.invoke(ctx, h, req.Code)
	elapsed := time.Since(start)

	var appErr *apperror.AppError
	switch {
	case err == nil:
		res := &ExecutionResult{
			Status:   StatusSuccess,
			Language: req.Language,
			Output:   texts(lines),
			Lines:    lines,
			Duration: elapsed,
		}
		e.finish(res)
		return res, nil

	case errors.Is(err, apperror.ErrUnsupportedLanguage) && errors.As(err, &appErr):
		res := failure(req.Language, appErr, KindUnsupportedLanguage, elapsed)
		e.finish(res)
		return res, nil

	case errors.Is(err, apperror.ErrRuntime) && errors.As(err, &appErr):
		res := failure(req.Language, appErr, KindRuntimeFailure, elapsed)
		e.finish(res)
		return res, nil

	default:
		e.logger.Error("execution infrastructure failure",
			slog.String("language", req.Language),
			slog.String("error", err.Error()),
		)
		if e.recorder != nil {
			e.recorder.ObserveExecution(e.metricLabel(req.Language), "error", elapsed)
		}
		return nil, fmt.Errorf("executor: running %s: %w", req.Language, err)
	}
}

// invoke is the capture critical section: the buffer is created right
// before the handler starts and sealed on every way out, panics included.
func (e *Engine) invoke(ctx context.Context, h Handler, code string) (lines []capture.Line, err error) {
	runCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	buf := capture.NewBuffer(e.config.MaxOutputBytes, e.fallback)
	defer func() {
		sealed := buf.Close()
		if r := recover(); r != nil {
			err = apperror.RuntimeFailure(fmt.Sprintf("handler panicked: %v", r))
			return
		}
		if err == nil {
			lines = sealed
		}
	}()

	return nil, h.Execute(runCtx, code, buf)
}

func (e *Engine) finish(res *ExecutionResult) {
	outcome := string(res.Status)
	if !res.OK() {
		outcome = string(res.Kind)
	}

	if e.recorder != nil {
		e.recorder.ObserveExecution(e.metricLabel(res.Language), outcome, res.Duration)
	}

	attrs := []any{
		slog.String("language", res.Language),
		slog.String("outcome", outcome),
		slog.Duration("duration", res.Duration),
	}
	if res.OK() {
		attrs = append(attrs, slog.Int("lines", len(res.Output)))
		e.logger.Info("execution finished", attrs...)
		return
	}
	attrs = append(attrs, slog.String("error", res.Error))
	e.logger.Info("execution failed", attrs...)
}

// UnsupportedLabel is the language reported to the Recorder for ids that
// have no handler. Client-supplied ids never become metric labels.
const UnsupportedLabel = "unsupported"

func (e *Engine) metricLabel(language string) string {
	if _, ok := e.handlers[language]; ok {
		return language
	}
	return UnsupportedLabel
}

func failure(language string, err *apperror.AppError, kind FailureKind, d time.Duration) *ExecutionResult {
	return &ExecutionResult{
		Status:   StatusFailure,
		Language: language,
		Output:   []string{},
		Error:    err.Message,
		Kind:     kind,
		Duration: d,
	}
}

func texts(lines []capture.Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}
