package logger

import (
	"bytes"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// HCLogger adapts a *slog.Logger to the hashicorp/go-hclog Logger interface.
//
// memberlist only accepts a *log.Logger; StandardLogger bridges that by
// parsing the "[LEVEL]" prefix memberlist writes on every line.
type HCLogger struct {
	logger *slog.Logger
	name   string
	args   []any
}

var _ hclog.Logger = (*HCLogger)(nil)

// NewHCLogger returns an hclog adapter writing through l.
func NewHCLogger(l *slog.Logger, name string) *HCLogger {
	if l == nil {
		l = slog.Default()
	}
	return &HCLogger{logger: l.With("component", name), name: name}
}

func (l *HCLogger) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		l.logger.Debug(msg, args...)
	case hclog.Warn:
		l.logger.Warn(msg, args...)
	case hclog.Error:
		l.logger.Error(msg, args...)
	default:
		l.logger.Info(msg, args...)
	}
}

func (l *HCLogger) Trace(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *HCLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *HCLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *HCLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *HCLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *HCLogger) IsTrace() bool { return sharedLevel.Level() <= slog.LevelDebug }
func (l *HCLogger) IsDebug() bool { return sharedLevel.Level() <= slog.LevelDebug }
func (l *HCLogger) IsInfo() bool  { return sharedLevel.Level() <= slog.LevelInfo }
func (l *HCLogger) IsWarn() bool  { return sharedLevel.Level() <= slog.LevelWarn }
func (l *HCLogger) IsError() bool { return sharedLevel.Level() <= slog.LevelError }

func (l *HCLogger) ImpliedArgs() []any { return l.args }

func (l *HCLogger) With(args ...any) hclog.Logger {
	implied := append(append([]any{}, l.args...), args...)
	return &HCLogger{logger: l.logger.With(args...), name: l.name, args: implied}
}

func (l *HCLogger) Name() string { return l.name }

func (l *HCLogger) Named(name string) hclog.Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &HCLogger{logger: l.logger.With("subsystem", name), name: full, args: l.args}
}

func (l *HCLogger) ResetNamed(name string) hclog.Logger {
	return &HCLogger{logger: l.logger, name: name, args: l.args}
}

// SetLevel is a no-op: the level is owned by the global slog LevelVar.
func (l *HCLogger) SetLevel(level hclog.Level) {}

func (l *HCLogger) GetLevel() hclog.Level {
	switch GetLevel() {
	case "debug":
		return hclog.Debug
	case "warn":
		return hclog.Warn
	case "error":
		return hclog.Error
	default:
		return hclog.Info
	}
}

func (l *HCLogger) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(l.StandardWriter(opts), "", 0)
}

func (l *HCLogger) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	if opts == nil {
		opts = &hclog.StandardLoggerOptions{}
	}
	return &hcWriter{logger: l, infer: opts.InferLevels, force: opts.ForceLevel}
}

// hcWriter turns "[WARN] memberlist: msg" lines into leveled records.
type hcWriter struct {
	logger *HCLogger
	infer  bool
	force  hclog.Level
}

func (w *hcWriter) Write(p []byte) (int, error) {
	line := string(bytes.TrimRight(p, " \t\n"))
	level := hclog.Info
	if w.force != hclog.NoLevel {
		level = w.force
	}
	if w.infer {
		level, line = splitLevel(line, level)
	}
	w.logger.Log(level, line)
	return len(p), nil
}

// splitLevel strips a leading "[LEVEL]" tag and returns the matching level.
func splitLevel(line string, fallback hclog.Level) (hclog.Level, string) {
	if !strings.HasPrefix(line, "[") {
		return fallback, line
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return fallback, line
	}
	rest := strings.TrimSpace(line[end+1:])
	switch line[1:end] {
	case "TRACE":
		return hclog.Trace, rest
	case "DEBUG":
		return hclog.Debug, rest
	case "INFO":
		return hclog.Info, rest
	case "WARN", "WARNING":
		return hclog.Warn, rest
	case "ERR", "ERROR":
		return hclog.Error, rest
	default:
		return fallback, line
	}
}
