// Package logger provides the structured logging surface every stage in the
// pipeline depends on: an slog-backed Logger interface with a WithComponent
// scoping method, fanning out through a zerolog handler and, when
// configured, a Sentry handler.
package logger

// Logger is the structured logging interface every stage depends on.
// Key-value pairs follow the slog convention: alternating key, value.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)

	// WithComponent scopes subsequent log lines with a "component" field.
	WithComponent(name string) Logger

	// Printf satisfies fx.Printer so the same logger can back fx.Logger(log).
	Printf(format string, v ...any)
}
