// Package capture implements the diagnostic sink handed to a running program.
//
// Instead of redirecting a process-wide logger, every execution receives its
// own Sink. The Engine creates a Buffer right before invoking a handler and
// seals it right after, so one run can never write into another run's output:
//
//	buf := capture.NewBuffer(limit, fallback)
//	defer buf.Close()
//	err := handler.Execute(ctx, code, buf)
//
// Once sealed, a Buffer forwards writes to its fallback sink (normally the
// host's slog logger). Late callbacks still go somewhere, but they never
// appear in a finished result.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Console levels a program can write at.
const (
	LevelLog   = "log"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelDebug = "debug"
)

// ErrOutputLimit is returned by Buffer.Log once the byte limit is reached.
var ErrOutputLimit = errors.New("capture: output limit exceeded")

// Sink receives one diagnostic call at a time. args are already stringified.
type Sink interface {
	Log(level string, args ...string) error
}

// Line is one captured diagnostic call.
type Line struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Buffer accumulates the output of exactly one execution.
type Buffer struct {
	mu       sync.Mutex
	lines    []Line
	size     int
	limit    int
	closed   bool
	fallback Sink
}

// NewBuffer creates an open buffer. limit <= 0 disables the byte limit.
// fallback may be nil, in which case writes after Close are dropped.
func NewBuffer(limit int, fallback Sink) *Buffer {
	return &Buffer{limit: limit, fallback: fallback}
}

// Log appends one line: the args space-joined. Every line counts its
// terminating newline towards the limit.
func (b *Buffer) Log(level string, args ...string) error {
	text := strings.Join(args, " ")

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if b.fallback == nil {
			return nil
		}
		return b.fallback.Log(level, args...)
	}
	defer b.mu.Unlock()

	n := len(text) + 1
	if b.limit > 0 && b.size+n > b.limit {
		return fmt.Errorf("%w (%d bytes)", ErrOutputLimit, b.limit)
	}
	b.size += n
	b.lines = append(b.lines, Line{Level: level, Text: text})
	return nil
}

// Close seals the buffer and returns what was captured. It is idempotent.
func (b *Buffer) Close() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return append([]Line(nil), b.lines...)
}

// Lines returns a copy of the captured lines without sealing.
func (b *Buffer) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Line(nil), b.lines...)
}

// Len reports the number of bytes captured so far, newlines included.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Text renders lines the way a terminal would show them: one line per call,
// each newline-terminated.
func Text(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// SlogSink writes console output to a structured logger. It is the "real"
// sink that late or out-of-run writes end up in.
type SlogSink struct {
	Logger *slog.Logger
}

// Log implements Sink.
func (s SlogSink) Log(level string, args ...string) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Log(context.Background(), slogLevel(level), "program output",
		slog.String("console", level),
		slog.String("text", strings.Join(args, " ")),
	)
	return nil
}

func slogLevel(level string) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
