// Package logging adapts zerolog to the chainz.Logger interface.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zoobzio/chainz"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level         string
	HumanReadable bool
	Writer        io.Writer
}

// Logger writes chainz log calls through zerolog.
type Logger struct {
	base zerolog.Logger
}

var _ chainz.Logger = (*Logger)(nil)

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	var output io.Writer = writer
	if opts.HumanReadable {
		console := zerolog.NewConsoleWriter()
		console.Out = writer
		console.TimeFormat = time.RFC3339
		output = console
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &Logger{base: logger}, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// With returns a derived logger that always writes the supplied key/value pairs.
func (l *Logger) With(keyvals ...any) *Logger {
	if l == nil {
		return nil
	}
	derived := Logger{base: apply(l.base.With(), keyvals).Logger()}
	return &derived
}

// Debug writes a debug-level entry if enabled.
func (l *Logger) Debug(_ context.Context, msg string, keyvals ...any) {
	if l == nil {
		return
	}
	fields(l.base.Debug(), keyvals).Msg(msg)
}

// Info writes an informational entry.
func (l *Logger) Info(_ context.Context, msg string, keyvals ...any) {
	if l == nil {
		return
	}
	fields(l.base.Info(), keyvals).Msg(msg)
}

// Warn writes a warning entry.
func (l *Logger) Warn(_ context.Context, msg string, keyvals ...any) {
	if l == nil {
		return
	}
	fields(l.base.Warn(), keyvals).Msg(msg)
}

// Error writes an error entry.
func (l *Logger) Error(_ context.Context, msg string, keyvals ...any) {
	if l == nil {
		return
	}
	fields(l.base.Error(), keyvals).Msg(msg)
}

// fields adds key/value pairs to an event. An "error" key holding an error is
// written with Err; a trailing key without value is recorded under "!BADKEY".
func fields(event *zerolog.Event, keyvals []any) *zerolog.Event {
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if i+1 >= len(keyvals) {
			event = event.Interface("!BADKEY", key)
			break
		}
		value := keyvals[i+1]
		if err, isErr := value.(error); isErr && key == "error" {
			event = event.Err(err)
			continue
		}
		event = event.Interface(key, value)
	}
	return event
}

func apply(ctx zerolog.Context, keyvals []any) zerolog.Context {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		ctx = ctx.Interface(key, keyvals[i+1])
	}
	return ctx
}
