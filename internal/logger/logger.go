// Package logger holds the process-wide structured logger. Events are logged
// with snake_case messages and key/value context, e.g.
// log.Infow("oven_run_started", "run_id", id).
package logger

import (
	"sync"
)

// Log levels accepted by Init, Get and the log.level config key.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Init builds the process-wide logger. Only the first call of Init or Get
// configures it; later calls return the existing logger.
func Init(level, format string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level, format, nil)
	})
	return globalLogger
}

// Get is Init with console output.
func Get(level string) *Logger {
	return Init(level, FormatConsole)
}

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(component)}
}
