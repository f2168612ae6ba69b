package logger

import (
	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/port/core"
)

// NoopLogger is a logger implementation that does nothing, useful for testing
type NoopLogger struct{}

// NewNoopLogger creates a new no-operation logger
func NewNoopLogger() core.Logger {
	return &NoopLogger{}
}

func (l *NoopLogger) SetLevel(level core.LogLevel) {}

func (l *NoopLogger) Debug(message string, fields map[string]any) {}
func (l *NoopLogger) Info(message string, fields map[string]any)  {}
func (l *NoopLogger) Warn(message string, fields map[string]any)  {}
func (l *NoopLogger) Error(message string, fields map[string]any) {}

func (l *NoopLogger) Flush() error { return nil }
