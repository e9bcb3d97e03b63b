// Package logrus adapts a *logrus.Entry to the rescache Logger interface.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/rescache"
)

var _ rescache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f rescache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}

func (l Logger) Info(msg string, f rescache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Info(msg)
}

func (l Logger) Warn(msg string, f rescache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Warn(msg)
}

func (l Logger) Error(msg string, f rescache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
