package logx

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger provides structured key/value logging for all wavescope components.
// It wraps logrus with a fixed component field and a compact kv-pair API so
// call sites stay on one line.
type Logger struct {
	backend   *logrus.Logger
	component string
	verbose   bool
}

// NewLogger creates a logger for a component. Level is one of
// trace|debug|info|warn|error (anything else falls back to info).
func NewLogger(level, component string) *Logger {
	backend := logrus.New()
	backend.SetOutput(os.Stdout)
	backend.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	l := &Logger{
		backend:   backend,
		component: component,
	}
	l.SetLevel(level)
	return l
}

// SetLevel updates the logging level at runtime.
func (l *Logger) SetLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		l.backend.SetLevel(logrus.TraceLevel)
		l.verbose = true
	case "debug":
		l.backend.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		l.backend.SetLevel(logrus.WarnLevel)
	case "error":
		l.backend.SetLevel(logrus.ErrorLevel)
	default:
		l.backend.SetLevel(logrus.InfoLevel)
	}
}

// WithComponent returns a child logger with a different component field but
// the same backend and level.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		backend:   l.backend,
		component: component,
		verbose:   l.verbose,
	}
}

func (l *Logger) entry(keysAndValues ...interface{}) *logrus.Entry {
	fields := logrus.Fields{"component": l.component}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return l.backend.WithFields(fields)
}

// Debug logs a debug message with alternating key/value pairs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues...).Debug(msg)
}

// Info logs an info message with alternating key/value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues...).Info(msg)
}

// Warn logs a warning message with alternating key/value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues...).Warn(msg)
}

// Error logs an error message with alternating key/value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues...).Error(msg)
}

// LogVerbose logs a named event with a field map, only when verbose (trace)
// logging is enabled.
func (l *Logger) LogVerbose(event string, fields map[string]interface{}) {
	if !l.verbose {
		return
	}
	f := logrus.Fields{"component": l.component, "event": event}
	for k, v := range fields {
		f[k] = v
	}
	l.backend.WithFields(f).Info("verbose_event")
}

// LogDebugVerbose logs a named event with a field map at debug level.
func (l *Logger) LogDebugVerbose(event string, fields map[string]interface{}) {
	f := logrus.Fields{"component": l.component, "event": event}
	for k, v := range fields {
		f[k] = v
	}
	l.backend.WithFields(f).Debug("debug_event")
}

// LogStateChange logs a component state transition with its reason and
// supporting data.
func (l *Logger) LogStateChange(component, from, to, reason string, fields map[string]interface{}) {
	f := logrus.Fields{
		"component": component,
		"from":      from,
		"to":        to,
		"reason":    reason,
	}
	for k, v := range fields {
		f[k] = v
	}
	l.backend.WithFields(f).Info("state_change")
}
