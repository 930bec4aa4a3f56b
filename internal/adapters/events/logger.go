package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/okian/poolscore/pkg/logger"
)

// watermillLogger routes watermill's internal logs through pkg/logger.
type watermillLogger struct {
	l logger.Logger
}

// NewWatermillLogger adapts l to watermill.LoggerAdapter. A nil l discards.
func NewWatermillLogger(l logger.Logger) watermill.LoggerAdapter {
	if l == nil {
		l = logger.Nop()
	}
	return &watermillLogger{l: l.Named("watermill")}
}

func fields(f watermill.LogFields) []logger.Field {
	out := make([]logger.Field, 0, len(f))
	for k, v := range f {
		out = append(out, logger.Any(k, v))
	}
	return out
}

func (w *watermillLogger) Error(msg string, err error, f watermill.LogFields) {
	w.l.Error(context.Background(), msg, append(fields(f), logger.Error(err))...)
}

func (w *watermillLogger) Info(msg string, f watermill.LogFields) {
	w.l.Info(context.Background(), msg, fields(f)...)
}

func (w *watermillLogger) Debug(msg string, f watermill.LogFields) {
	w.l.Debug(context.Background(), msg, fields(f)...)
}

// Trace maps to debug; pkg/logger has no trace level.
func (w *watermillLogger) Trace(msg string, f watermill.LogFields) {
	w.l.Debug(context.Background(), msg, fields(f)...)
}

func (w *watermillLogger) With(f watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{l: w.l.With(fields(f)...)}
}
