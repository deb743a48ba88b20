// Package kdlog centralizes structured logging: a local sink always
// writes, and an optional remote structured sink can be layered on via
// functional options.
package kdlog

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Severity mirrors the GCP Cloud Logging severity enum.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// RemoteSink is implemented by an optional remote structured-log
// destination (see cloudsink.go for the cloud.google.com/go/logging
// implementation).
type RemoteSink interface {
	Log(entry Entry)
	Close() error
}

// Entry is one structured log record.
type Entry struct {
	Severity  Severity
	Message   string
	Fields    map[string]string
	Iteration int
	Timestamp time.Time
}

// Logger writes to a local *log.Logger and, if configured, an additional
// RemoteSink.
type Logger struct {
	local     *log.Logger
	remote    RemoteSink
	fields    map[string]string
	iteration int
}

// Option customizes a Logger via the functional-options pattern.
type Option func(*Logger)

// WithFields attaches static key/value fields to every entry this logger
// emits.
func WithFields(fields map[string]string) Option {
	return func(l *Logger) { l.fields = fields }
}

// WithIteration tags every entry with an iteration number, for harness
// loggers that rotate per task iteration.
func WithIteration(n int) Option {
	return func(l *Logger) { l.iteration = n }
}

// WithRemote attaches a remote sink. Passing nil is a no-op, so callers
// can unconditionally call WithRemote(maybeNilSink).
func WithRemote(sink RemoteSink) Option {
	return func(l *Logger) {
		if sink != nil {
			l.remote = sink
		}
	}
}

// New builds a Logger writing locally to w (typically a branch-scoped log
// file under .kd/branches/<slug>/logs/).
func New(w *os.File, opts ...Option) *Logger {
	l := &Logger{local: log.New(w, "", log.LstdFlags)}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Logger) emit(sev Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.local.Printf("[%s] %s", sev, msg)
	if l.remote != nil {
		l.remote.Log(Entry{
			Severity:  sev,
			Message:   msg,
			Fields:    l.fields,
			Iteration: l.iteration,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (l *Logger) Info(format string, args ...any)    { l.emit(SeverityInfo, format, args...) }
func (l *Logger) Warning(format string, args ...any) { l.emit(SeverityWarning, format, args...) }
func (l *Logger) Error(format string, args ...any)   { l.emit(SeverityError, format, args...) }

// Close releases the remote sink, if any.
func (l *Logger) Close() error {
	if l.remote != nil {
		return l.remote.Close()
	}
	return nil
}
