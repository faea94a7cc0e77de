// Package logger provides structured logging for the application, backed by
// logrus. Services accept a *Logger and fall back to a sensible default when
// handed nil, so construction never fails on logging concerns.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls log level, format, and destination.
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// Logger wraps a logrus entry so call sites can chain contextual fields.
type Logger struct {
	entry *logrus.Entry
}

// New builds a logger from configuration.
func New(cfg Config) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	base.SetOutput(resolveOutput(cfg.Output))

	return &Logger{entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level text logger tagged with a component name.
func NewDefault(component string) *Logger {
	l := New(Config{Level: "info", Format: "text", Output: "stdout"})
	return l.WithField("component", component)
}

func resolveOutput(output string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return file
	}
}

// WithField returns a logger carrying an additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger carrying several additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a logger carrying the error under the standard key.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...any) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...any)  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...any)  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...any) { l.entry.Error(args...) }

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
