package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level represents logging level
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config holds logger configuration
type Config struct {
	Level      Level
	TimeFormat string
	Pretty     bool
	Output     io.Writer
}

// Logger wraps zerolog.Logger
type Logger struct {
	ZL zerolog.Logger
}

// New creates a new logger instance
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = &Config{
			Level:      InfoLevel,
			TimeFormat: time.RFC3339,
			Output:     os.Stdout,
		}
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: cfg.TimeFormat,
		}
	}

	zl := zerolog.New(out).
		Level(cfg.Level).
		With().
		Timestamp().
		Caller().
		Logger()

	return &Logger{ZL: zl}
}

// WithFields returns a logger with the fields attached to every event.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{ZL: l.ZL.With().Fields(fields).Logger()}
}

func (l *Logger) Debug() *zerolog.Event { return l.ZL.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.ZL.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.ZL.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.ZL.Error() }
func (l *Logger) Fatal() *zerolog.Event { return l.ZL.Fatal() }
