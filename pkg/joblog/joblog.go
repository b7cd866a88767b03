// Package joblog writes per-job structured workflow logs.
//
// Each job gets one file at logs/workflow_{workflow_id}.log with lines
// formatted as:
//
//	YYYY-MM-DD HH:MM:SS - <logger> - <LEVEL> - <message> | STRUCTURED: <json>
//
// FileHandler implements slog.Handler so the same slog calls that reach
// stderr also land in the job file via TeeHandler.
package joblog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// LoggerNameKey is the attribute carrying the <logger> component of a line.
// Defaults to "workflow" when absent.
const LoggerNameKey = "logger"

// FileHandler is a slog.Handler that appends formatted lines to a job file.
type FileHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	attrs []slog.Attr
}

// Open creates the log directory and the per-job file, returning a handler
// and a closer for the underlying file.
func Open(logDir, workflowID string) (*FileHandler, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	path := filepath.Join(logDir, fmt.Sprintf("workflow_%s.log", workflowID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening job log file: %w", err)
	}
	return NewFileHandler(f), f, nil
}

// NewFileHandler wraps an arbitrary writer (used directly in tests).
func NewFileHandler(w io.Writer) *FileHandler {
	return &FileHandler{mu: &sync.Mutex{}, w: w}
}

func (h *FileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (h *FileHandler) Handle(_ context.Context, r slog.Record) error {
	loggerName := "workflow"
	structured := make(map[string]any, r.NumAttrs()+len(h.attrs))
	collect := func(a slog.Attr) bool {
		if a.Key == LoggerNameKey {
			loggerName = a.Value.String()
			return true
		}
		structured[a.Key] = a.Value.Any()
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	line := fmt.Sprintf("%s - %s - %s - %s",
		r.Time.Format("2006-01-02 15:04:05"),
		loggerName,
		r.Level.String(),
		r.Message,
	)
	if len(structured) > 0 {
		payload, err := json.Marshal(structured)
		if err != nil {
			return fmt.Errorf("marshaling structured fields: %w", err)
		}
		line += " | STRUCTURED: " + string(payload)
	}
	line += "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &FileHandler{mu: h.mu, w: h.w, attrs: merged}
}

func (h *FileHandler) WithGroup(string) slog.Handler {
	// Groups are flattened; the job log format has no nesting.
	return h
}

// TeeHandler fans every record out to all wrapped handlers.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTee combines handlers; typically stderr text plus the job file.
func NewTee(handlers ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: handlers}
}

func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	wrapped := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		wrapped[i] = h.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: wrapped}
}

func (t *TeeHandler) WithGroup(name string) slog.Handler {
	wrapped := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		wrapped[i] = h.WithGroup(name)
	}
	return &TeeHandler{handlers: wrapped}
}
