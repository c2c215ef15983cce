// Package logger wraps logrus with the project's defaults so every
// component logs with a consistent level/format/output.
package logger

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// Config controls level/format/output for a Logger.
type Config struct {
	Level  string // panic|fatal|error|warn|info|debug|trace
	Format string // "json" or "text"
}

// New builds a Logger from Config, defaulting to info/text on invalid input.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l}
}

// NewDefault returns an info-level, text-formatted Logger. name is accepted
// for call-site readability (callers typically follow up with
// WithField("component", name)) but does not itself change output.
func NewDefault(name string) *Logger {
	return New(Config{Level: "info", Format: "text"})
}

// WithField returns a new entry with a field attached.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a new entry with multiple fields attached.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// NewRequestID generates a correlation id for one inbound HTTP request, so
// a run's log lines can be grepped across the handler, the Graph Loader,
// and any downstream gateway call it triggers.
func NewRequestID() string {
	return uuid.New().String()
}
