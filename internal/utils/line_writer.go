package utils

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// LineLogger implements io.Writer and emits every complete line written to it
// as a slog record. It is used to capture the output of child processes.
type LineLogger struct {
	logger *slog.Logger
	level  slog.Level
	msg    string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineLogger creates a LineLogger logging lines at level with the given message.
func NewLineLogger(logger *slog.Logger, level slog.Level, msg string) *LineLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineLogger{logger: logger, level: level, msg: msg}
}

// Write implements io.Writer
func (w *LineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}

	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := w.buf.Next(idx + 1)
		w.emit(line)
	}
	return n, nil
}

// Close flushes a trailing partial line.
func (w *LineLogger) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
	return nil
}

func (w *LineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return
	}
	w.logger.Log(context.Background(), w.level, w.msg, "line", string(line))
}
