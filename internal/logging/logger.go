// Package logging adapts zerolog to the gia.Logger interface.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger implements gia.Logger on top of a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New returns a logger writing human-readable lines to w. Debug messages are
// dropped unless verbose is set.
func New(w io.Writer, verbose bool) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return &Logger{zl: zerolog.New(output).Level(level).With().Timestamp().Logger()}
}

// NewJSON returns a logger emitting one JSON object per line.
func NewJSON(w io.Writer, verbose bool) *Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Stderr is the logger used by the CLI.
func Stderr(verbose bool) *Logger {
	return New(os.Stderr, verbose)
}

// Debug implements gia.Logger.Debug.
func (l *Logger) Debug(msg string, fields map[string]interface{}) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

// Info implements gia.Logger.Info.
func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.zl.Info().Fields(fields).Msg(msg)
}

// Warn implements gia.Logger.Warn.
func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.zl.Warn().Fields(fields).Msg(msg)
}

// Error implements gia.Logger.Error.
func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.zl.Error().Fields(fields).Msg(msg)
}

// Zerolog exposes the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}
