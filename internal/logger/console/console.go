// Package console is a logger backend printing to a terminal.
package console

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger writes leveled, timestamped lines through charmbracelet/log.
type Logger struct {
	l *log.Logger
}

// Params configures a console Logger.
type Params struct {
	// Debug enables DEBUG level output.
	Debug bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a console Logger.
func New(p Params) *Logger {
	level := log.InfoLevel
	if p.Debug {
		level = log.DebugLevel
	}
	out := p.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		l: log.NewWithOptions(out, log.Options{
			ReportTimestamp: true,
			Level:           level,
			Prefix:          "kin",
		}),
	}
}

// Debug logs at DEBUG level; it is dropped unless Params.Debug is set.
func (c *Logger) Debug(msg string, keyvals ...any) { c.l.Debug(msg, keyvals...) }

// Info logs at INFO level.
func (c *Logger) Info(msg string, keyvals ...any) { c.l.Info(msg, keyvals...) }

// Warn logs at WARN level.
func (c *Logger) Warn(msg string, keyvals ...any) { c.l.Warn(msg, keyvals...) }

// Error logs at ERROR level.
func (c *Logger) Error(msg string, keyvals ...any) { c.l.Error(msg, keyvals...) }

// Fatal logs at FATAL level and exits the process with status 1.
func (c *Logger) Fatal(msg string, keyvals ...any) { c.l.Fatal(msg, keyvals...) }
