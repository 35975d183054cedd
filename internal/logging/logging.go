// Package logging builds the logrus loggers used across lpdoc.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)

	return l
}()

// New returns a text logger writing to w at level, without timestamps.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	return l
}

// Discard returns a logger that drops everything.
func Discard() logrus.FieldLogger { return discard }

// OrDiscard returns log, or [Discard] if log is nil.
func OrDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return discard
	}

	return log
}
