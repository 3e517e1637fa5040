package docker

import (
	"bytes"
	"encoding/json"

	"github.com/sakif/js-playground/internal/capture"
)

// consoleWriter turns the wrapper's stdout into sink calls, one per line.
// It stops accepting data after the sink refuses a line.
type consoleWriter struct {
	sink    capture.Sink
	partial []byte
	err     error
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := w.partial[:i]
		w.partial = w.partial[i+1:]
		if err := w.emit(line); err != nil {
			w.err = err
			return 0, err
		}
	}
}

// Flush emits a trailing line that had no newline.
func (w *consoleWriter) Flush() error {
	if w.err != nil || len(w.partial) == 0 {
		return w.err
	}
	line := w.partial
	w.partial = nil
	if err := w.emit(line); err != nil {
		w.err = err
	}
	return w.err
}

// emit decodes a [level, text] pair. Anything else, e.g. a direct
// process.stdout.write, is logged verbatim at level log.
func (w *consoleWriter) emit(line []byte) error {
	var pair [2]string
	if err := json.Unmarshal(line, &pair); err == nil && pair[0] != "" {
		return w.sink.Log(pair[0], pair[1])
	}
	return w.sink.Log(capture.LevelLog, string(line))
}
