// Package logger wraps zerolog with the field conventions used across the builder.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tagomatech/ETL/pkg/config"
)

// Common field keys
const (
	FieldModule  = "module"
	FieldSymbol  = "symbol"
	FieldRoot    = "root"
	FieldLine    = "line"
	FieldElapsed = "elapsed"
)

// Logger is a structured logger wrapper around zerolog
// ⭐ SSOT: 모든 로깅은 이 패키지를 통해서만 수행
type Logger struct {
	zlog zerolog.Logger
}

// New creates a Logger from config
// ⭐ SSOT: zerolog 인스턴스는 여기서만 생성
// Logs go to stderr so that series output on stdout stays machine-readable.
func New(cfg *config.Config) *Logger {
	zlog := zerolog.New(formatWriter(os.Stderr, cfg.LogFormat)).
		Level(parseLogLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("env", cfg.Env).
		Logger()

	return &Logger{zlog: zlog}
}

// NewWithWriter creates a JSON logger on w at the given level
func NewWithWriter(w io.Writer, level string) *Logger {
	zlog := zerolog.New(w).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Logger()
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func formatWriter(out io.Writer, format string) io.Writer {
	switch strings.ToLower(format) {
	case "console", "pretty":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	default:
		return out
	}
}

// parseLogLevel maps a level name to zerolog; unknown names mean info
func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.zlog.Debug().Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.zlog.Warn().Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.zlog.Error().Msg(msg)
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

// WithFields returns a new logger with multiple fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// WithError returns a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger()}
}

// Module tags every entry with the emitting component
func (l *Logger) Module(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str(FieldModule, name).Logger()}
}

// ForContract tags entries with one contract symbol
func (l *Logger) ForContract(symbol string) *Logger {
	return &Logger{zlog: l.zlog.With().Str(FieldSymbol, symbol).Logger()}
}

// ForBuild tags entries with the product root and nearby line being built
// A line of 0 leaves the line field off.
func (l *Logger) ForBuild(root string, line int) *Logger {
	ctx := l.zlog.With().Str(FieldRoot, root)
	if line > 0 {
		ctx = ctx.Int(FieldLine, line)
	}
	return &Logger{zlog: ctx.Logger()}
}

// WithElapsed records how long the logged operation took, in milliseconds
func (l *Logger) WithElapsed(d time.Duration) *Logger {
	return &Logger{zlog: l.zlog.With().Dur(FieldElapsed, d).Logger()}
}
