package core

// LogLevel represents logging severity levels
type LogLevel int

const (
	// LogLevelDebug traces individual acquisitions, joins and commits
	LogLevelDebug LogLevel = iota
	// LogLevelInfo for connection lifecycle and scope outcomes
	LogLevelInfo
	// LogLevelWarn for abandoned scopes and pool pressure
	LogLevelWarn
	// LogLevelError for commit and rollback failures
	LogLevelError
)

// Logger is the structured logging port. Scopes and providers log through
// it so the coordination core never depends on a concrete logging library.
type Logger interface {
	// SetLevel sets the minimum log level to output
	SetLevel(level LogLevel)
	// Debug logs debug messages
	Debug(message string, fields map[string]any)
	// Info logs informational messages
	Info(message string, fields map[string]any)
	// Warn logs warning messages
	Warn(message string, fields map[string]any)
	// Error logs errors messages
	Error(message string, fields map[string]any)
	// Flush ensures all buffered logs are written to their destination
	Flush() error
}
