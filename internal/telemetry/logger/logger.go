// Package logger provides structured logging for meshkv.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the application logger interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger

	// WithContext binds ctx to every record, so request-scoped values in
	// ctx appear as attributes.
	WithContext(ctx context.Context) Logger
}

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config holds logger configuration.
type Config struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string

	// Format is json or text. Empty means json.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer

	AddSource bool
}

// DefaultConfig returns JSON at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatJSON, Output: os.Stderr}
}

// sharedLevel is shared by every logger built here, so SetLevel applies
// process-wide, including to library adapters.
var sharedLevel = new(slog.LevelVar)

// ParseLevel maps a level name onto slog. "trace" is accepted as debug
// and "warning" as warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// ValidateFormat reports whether f names a supported format.
func ValidateFormat(f string) error {
	switch strings.ToLower(f) {
	case "", FormatJSON, FormatText, "console":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", f)
	}
}

// New builds a logger and sets the process-wide level.
func New(cfg Config) (Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if err := ValidateFormat(cfg.Format); err != nil {
		return nil, err
	}
	sharedLevel.Set(lvl)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     sharedLevel,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var h slog.Handler
	if f := strings.ToLower(cfg.Format); f == FormatText || f == "console" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return &slogLogger{logger: slog.New(contextHandler{h}), ctx: context.Background()}, nil
}

// SetLevel changes the process-wide level. An unknown name leaves the
// level unchanged.
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	sharedLevel.Set(lvl)
	return nil
}

// GetLevel returns the current level name.
func GetLevel() string {
	switch l := sharedLevel.Level(); {
	case l <= slog.LevelDebug:
		return "debug"
	case l <= slog.LevelInfo:
		return "info"
	case l <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...), ctx: l.ctx}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{logger: l.logger, ctx: ctx}
}

// Slog returns the *slog.Logger behind l, for library adapters that
// need the standard type (badger, memberlist). Loggers not created by
// this package fall back to slog.Default().
func Slog(l Logger) *slog.Logger {
	if sl, ok := l.(*slogLogger); ok {
		return sl.logger
	}
	return slog.Default()
}

var defaultLogger atomic.Pointer[slogLogger]

func init() {
	l, _ := New(DefaultConfig())
	defaultLogger.Store(l.(*slogLogger))
}

// SetDefault replaces the default logger and slog's default. Loggers
// from other packages are ignored.
func SetDefault(l Logger) {
	if sl, ok := l.(*slogLogger); ok {
		defaultLogger.Store(sl)
		slog.SetDefault(sl.logger)
	}
}

// Default returns the default logger.
func Default() Logger {
	return defaultLogger.Load()
}
