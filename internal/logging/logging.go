// Package logging provides structured logging for feedoracle.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, component-based loggers and
// rotating file output.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("router")
//	log.Info("calculator registered", "output", "option_price")
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Output selects where log records are written.
type Output struct {
	// Path is "stdout", "stderr" or a file path. Empty means stdout.
	Path string

	// MaxSizeMB is the size at which a log file is rotated.
	MaxSizeMB int

	// MaxAgeDays is how long rotated files are kept. Zero keeps them forever.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitOutput(level, jsonFormat, Output{})
}

// InitOutput initializes the global logger writing to the given output.
// File outputs are rotated by lumberjack.
func InitOutput(level slog.Level, jsonFormat bool, out Output) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	w := writerFor(out)
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func writerFor(out Output) io.Writer {
	switch out.Path {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		maxSize := out.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		return &lumberjack.Logger{
			Filename: out.Path,
			MaxSize:  maxSize,
			MaxAge:   out.MaxAgeDays,
			Compress: out.Compress,
		}
	}
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel maps a config string to a slog level. Unknown values yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Package-level component loggers are created at init time, so the returned
// logger defers to whatever global logger is current when a record is emitted.
func Component(name string) *slog.Logger {
	return slog.New(&deferredHandler{}).With("component", name)
}

// WithContext returns a logger that includes context values.
func WithContext(ctx context.Context) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}

	logger := Logger

	if principal, ok := ctx.Value(contextKeyPrincipal).(string); ok {
		logger = logger.With("principal", principal)
	}
	if requestID, ok := ctx.Value(contextKeyRequestID).(uint64); ok {
		logger = logger.With("request_id", requestID)
	}

	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyPrincipal contextKey = iota
	contextKeyRequestID
)

// ContextWithPrincipal adds the calling principal to the context for logging.
func ContextWithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, principal)
}

// ContextWithRequestID adds a request ID to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID uint64) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// deferredHandler resolves the global handler per record, replaying the
// attrs and groups added to it in order.
type deferredHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h *deferredHandler) target() slog.Handler {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	t := Logger.Handler()
	for _, op := range h.ops {
		t = op(t)
	}
	return t
}

func (h *deferredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.target().Enabled(ctx, level)
}

func (h *deferredHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(t slog.Handler) slog.Handler { return t.WithAttrs(attrs) })
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	return h.with(func(t slog.Handler) slog.Handler { return t.WithGroup(name) })
}

func (h *deferredHandler) with(op func(slog.Handler) slog.Handler) *deferredHandler {
	ops := make([]func(slog.Handler) slog.Handler, 0, len(h.ops)+1)
	ops = append(ops, h.ops...)
	ops = append(ops, op)
	return &deferredHandler{ops: ops}
}
