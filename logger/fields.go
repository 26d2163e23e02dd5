package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across p8ls.
const (
	// Identity and context
	FieldSession = "session"
	FieldClient  = "client"

	// Components
	FieldComponent = "component"
	FieldTransport = "transport"

	// Requests
	FieldMethod    = "method"
	FieldURI       = "uri"
	FieldWord      = "word"
	FieldLine      = "line"
	FieldCharacter = "character"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount  = "count"
	FieldLength = "length"

	// Network
	FieldAddress = "address"
	FieldRemote  = "remote"

	// Files
	FieldFile = "file"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	h := &GLSPHandler{logger: logger.ComponentLogger("lsp")}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	connLogger := logger.ChildLogger(base, logger.FieldSession, id)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
