package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
func NewZerologLogger(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zl: zl}
}

// NewConsoleLogger builds a zerolog console logger on w (stderr when nil)
// at the given level.
func NewConsoleLogger(w io.Writer, level Level) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isTerminal(f)
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: noColor}).
		With().Timestamp().Logger().
		Level(toZerologLevel(level))
	return &ZerologLogger{zl: zl}
}

func toZerologLevel(level Level) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func withFields(e *zerolog.Event, fields []Fields) *zerolog.Event {
	for _, f := range fields {
		for k, v := range f {
			switch val := v.(type) {
			case time.Duration:
				e = e.Dur(k, val)
			case error:
				e = e.AnErr(k, val)
			default:
				e = e.Interface(k, val)
			}
		}
	}
	return e
}

func (z *ZerologLogger) Debug(msg string, fields ...Fields) {
	withFields(z.zl.Debug(), fields).Msg(msg)
}

func (z *ZerologLogger) Info(msg string, fields ...Fields) {
	withFields(z.zl.Info(), fields).Msg(msg)
}

func (z *ZerologLogger) Warn(msg string, fields ...Fields) {
	withFields(z.zl.Warn(), fields).Msg(msg)
}

func (z *ZerologLogger) Error(err error, msg string, fields ...Fields) {
	withFields(z.zl.Error().Err(err), fields).Msg(msg)
}

// Fatal logs and exits through zerolog's fatal handling.
func (z *ZerologLogger) Fatal(err error, msg string, fields ...Fields) {
	withFields(z.zl.Fatal().Err(err), fields).Msg(msg)
}

func (z *ZerologLogger) WithFields(fields Fields) Logger {
	ctx := z.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &ZerologLogger{zl: ctx.Logger()}
}

func (z *ZerologLogger) WithContext(ctx context.Context) Logger {
	if fields := FieldsFromContext(ctx); len(fields) > 0 {
		return z.WithFields(fields)
	}
	return z
}

func (z *ZerologLogger) SetLevel(level Level) {
	z.zl = z.zl.Level(toZerologLevel(level))
}
