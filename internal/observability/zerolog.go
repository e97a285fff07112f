package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ZerologConfig captures options for building the zerolog-backed logger.
type ZerologConfig struct {
	Level     string    // optional log level ("debug", "info", etc.)
	Output    io.Writer // optional writer (defaults to os.Stderr)
	Component string    // optional component name attached to every entry
}

// NewZerolog builds a Logger backed by zerolog.
func NewZerolog(cfg ZerologConfig) Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = parsed
		}
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	builder := zerolog.New(writer).Level(level).With().Timestamp()
	if cfg.Component != "" {
		builder = builder.Str("component", cfg.Component)
	}
	l := builder.Logger()
	return &zerologLogger{logger: l}
}

type zerologLogger struct {
	logger zerolog.Logger
}

func (z *zerologLogger) Debug(msg string, fields ...Field) {
	emit(z.logger.Debug(), msg, fields)
}

func (z *zerologLogger) Info(msg string, fields ...Field) {
	emit(z.logger.Info(), msg, fields)
}

func (z *zerologLogger) Warn(msg string, fields ...Field) {
	emit(z.logger.Warn(), msg, fields)
}

func (z *zerologLogger) Error(msg string, fields ...Field) {
	emit(z.logger.Error(), msg, fields)
}

func emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}
