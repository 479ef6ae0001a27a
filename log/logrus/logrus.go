// Package logrus adapts a *logrus.Entry to querycache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/querycache"
)

var _ querycache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every line with the cache namespace.
func New(l *logrus.Logger, namespace string) Logger {
	return Logger{E: l.WithField("querycache", namespace)}
}

func (l Logger) with(f querycache.Fields) *logrus.Entry {
	if err, ok := f["err"].(error); ok {
		rest := make(logrus.Fields, len(f))
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		return l.E.WithError(err).WithFields(rest)
	}
	return l.E.WithFields(logrus.Fields(f))
}

func (l Logger) Debug(msg string, f querycache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f querycache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f querycache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f querycache.Fields) { l.with(f).Error(msg) }
