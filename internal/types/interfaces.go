package types

import "time"

// Logger defines the structured logging interface used throughout the engine.
// Each entrypoint wires a log/slog adapter; library code never touches slog
// directly.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// NopLogger discards all log output. Useful as a default and in tests.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)      {}
func (NopLogger) Error(string, ...any)     {}
func (NopLogger) Warn(string, ...any)      {}
func (n NopLogger) With(...any) Logger     { return n }
