package logger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one log line with metric fields (duration_ms, failed, status).
// The logger is resolved from ctx when the line is written, so run, stage
// and request fields attached upstream are kept.
type Entry struct {
	fields Fields
}

// With starts an Entry with the given metric fields.
// Example: logger.With(logger.Fields{"found": 12}).WithDuration(d).Info(ctx, "Scan finished")
func With(fields Fields) *Entry {
	return (&Entry{}).With(fields)
}

// With returns a copy of the Entry with fields added.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithDuration records d as duration_ms.
func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.With(Fields{FieldDurationMs: d.Milliseconds()})
}

// WithFailed records the number of failed items.
func (e *Entry) WithFailed(failed int) *Entry {
	return e.With(Fields{FieldFailed: failed})
}

// WithStatus records a run or response status.
func (e *Entry) WithStatus(status string) *Entry {
	return e.With(Fields{FieldStatus: status})
}

func (e *Entry) log(ctx context.Context, level logrus.Level, format string, args []interface{}) {
	FromContext(ctx).WithFields(e.fields).Logf(level, format, args...)
}

// Debug writes the entry at debug level.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.DebugLevel, format, args)
}

// Info writes the entry at info level.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.InfoLevel, format, args)
}

// Warn writes the entry at warn level.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.WarnLevel, format, args)
}

// Error writes the entry at error level.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.ErrorLevel, format, args)
}
