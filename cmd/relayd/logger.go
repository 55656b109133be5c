// logger.go - Structured logging for the relay daemon
package main

import (
	"io"
	"os"
	"time"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Logger carries the operational log and a separate append-only audit
// trail. Neither ever receives an amount or a blinding factor.
type Logger struct {
	zerolog.Logger
	audit   zerolog.Logger
	closers []io.Closer
}

// NewLogger creates a new logger instance
func NewLogger(cfg LogConfig, stdout io.Writer) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	l := &Logger{audit: zerolog.Nop()}

	var console io.Writer = stdout
	if cfg.Format == "console" {
		console = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{console}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		l.closers = append(l.closers, f)
		writers = append(writers, f)
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Str("service", "shadowwire-relay").
		Logger()

	if cfg.AuditPath != "" {
		f, err := os.OpenFile(cfg.AuditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			l.Close()
			return nil, errors.Wrap(err, "failed to open audit file")
		}
		l.closers = append(l.closers, f)
		l.audit = zerolog.New(f).With().Timestamp().Logger()
	}

	// Route circuit compilation and setup output through the same sink.
	gnarklogger.Set(l.Logger.With().Str("component", "gnark").Logger())

	return l, nil
}

// Audit records a security-relevant event. Only public data may be passed.
func (l *Logger) Audit(event string, fields map[string]interface{}) {
	l.audit.Log().Str("event", event).Fields(fields).Send()
}

// Close closes the log files
func (l *Logger) Close() error {
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}
