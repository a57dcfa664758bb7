// Package logger provides the structured logger shared by all application
// modules. It wraps zerolog behind a small API so callers never depend on
// the backend directly.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values fall back
	// to info.
	Level string
	// Format is "json" or "console". Console output is human readable and
	// intended for local development.
	Format string
	// Name tags every event with a component name.
	Name string
}

// Logger is a leveled structured logger. The zero value is not usable;
// construct instances with New or NewDefault.
type Logger struct {
	zl zerolog.Logger
}

// New builds a logger from the supplied configuration.
func New(cfg Config) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.Name != "" {
		zl = zl.With().Str("component", cfg.Name).Logger()
	}
	return &Logger{zl: zl}
}

// NewDefault returns an info-level JSON logger tagged with the given
// component name. Services use this when no logger is injected.
func NewDefault(name string) *Logger {
	return New(Config{Level: "info", Name: name})
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetOutput redirects all subsequent log output. Primarily used by tests
// to silence a logger.
func (l *Logger) SetOutput(w io.Writer) {
	l.zl = l.zl.Output(w)
}

// WithField returns a logger carrying an extra key/value pair.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a logger carrying the error under the "error" key.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().AnErr("error", err).Logger()}
}

func (l *Logger) Debug(msg string)                          { l.zl.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Info(msg string)                           { l.zl.Info().Msg(msg) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warn(msg string)                           { l.zl.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Error(msg string)                          { l.zl.Error().Msg(msg) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }
