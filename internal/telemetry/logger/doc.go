// Package logger provides structured logging for meshkv.
//
// Loggers are slog-backed and share one process-wide level, which the
// config watcher adjusts at runtime. Attributes whose keys look like
// secrets are redacted. A request ID placed in a context with
// WithRequestID is added to every record logged through a logger bound
// to that context.
//
// Libraries that need a *slog.Logger get one from Slog; hashicorp
// libraries get an hclog adapter from NewHCLogger.
package logger
