// Package dblog gives the storage engine a single structured logger so
// buffer pool, index, and transaction tracing share fields instead of
// ad-hoc printf lines.
package dblog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields is a structured-logging field set; an alias for logrus.Fields so
// callers needn't import logrus to build one.
type Fields = logrus.Fields

// Logger is the subset of logrus.FieldLogger the engine needs. Components
// accept this interface rather than *logrus.Logger so tests can inject a
// discard logger without pulling in logrus's formatting machinery.
type Logger interface {
	WithFields(fields Fields) *logrus.Entry
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

var std Logger = logrus.StandardLogger()

// Default returns the package-wide logger, used by components that were
// not constructed with an explicit one.
func Default() Logger { return std }

// SetDefault replaces the package-wide logger, e.g. to silence output in
// tests or redirect it to a test-scoped sink.
func SetDefault(l Logger) { std = l }

// Discard is a Logger that drops everything, used by tests that want to
// exercise code paths without logrus formatting overhead or output noise.
type Discard struct{}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (Discard) WithFields(Fields) *logrus.Entry { return logrus.NewEntry(discardLogger) }
func (Discard) Debugf(string, ...interface{})   {}
func (Discard) Infof(string, ...interface{})    {}
func (Discard) Warnf(string, ...interface{})    {}
