// Package log provides a thin, chainable wrapper around zerolog so the
// rest of the module can log structured fields without importing zerolog
// directly everywhere.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
	With().Timestamp().Logger()

// SetLevel sets the global minimum log level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// SetOutput redirects log output, e.g. to a file or to structured JSON
// when the host is piping events to another process.
func SetOutput(w io.Writer) {
	logger = zerolog.New(w).With().Timestamp().Logger()
}

// Event accumulates structured fields before a level is chosen, mirroring
// the WithField(...).WithError(...).Info("msg") chains used throughout
// the codebase.
type Event struct {
	fields map[string]interface{}
	err    error
}

// WithField starts a new log event with a single structured field.
func WithField(key string, value interface{}) *Event {
	return (&Event{}).WithField(key, value)
}

// WithFields starts a new log event with a map of structured fields.
func WithFields(fields map[string]interface{}) *Event {
	return (&Event{}).WithFields(fields)
}

// WithError starts a new log event carrying an error field.
func WithError(err error) *Event {
	return (&Event{}).WithError(err)
}

// WithField attaches a single structured field.
func (e *Event) WithField(key string, value interface{}) *Event {
	if e.fields == nil {
		e.fields = make(map[string]interface{}, 4)
	}
	e.fields[key] = value
	return e
}

// WithFields merges a map of structured fields into the event.
func (e *Event) WithFields(fields map[string]interface{}) *Event {
	if e.fields == nil {
		e.fields = make(map[string]interface{}, len(fields))
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError attaches an error field.
func (e *Event) WithError(err error) *Event {
	e.err = err
	return e
}

func (e *Event) emit(evt *zerolog.Event, msg string) {
	for k, v := range e.fields {
		evt = evt.Interface(k, v)
	}
	if e.err != nil {
		evt = evt.Err(e.err)
	}
	evt.Msg(msg)
}

// Debug logs the event at debug level.
func (e *Event) Debug(msg string) { e.emit(logger.Debug(), msg) }

// Info logs the event at info level.
func (e *Event) Info(msg string) { e.emit(logger.Info(), msg) }

// Warn logs the event at warn level.
func (e *Event) Warn(msg string) { e.emit(logger.Warn(), msg) }

// Error logs the event at error level.
func (e *Event) Error(msg string) { e.emit(logger.Error(), msg) }

// Debug logs a bare message at debug level.
func Debug(msg string) { logger.Debug().Msg(msg) }

// Info logs a bare message at info level.
func Info(msg string) { logger.Info().Msg(msg) }

// Warn logs a bare message at warn level.
func Warn(msg string) { logger.Warn().Msg(msg) }

// Error logs a bare message at error level.
func Error(msg string) { logger.Error().Msg(msg) }

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
