// Package rlog is the logging facade every package in this module calls
// through, so the command-line entry point is the only place that picks a
// concrete logrus configuration, mirroring the teacher's own use of
// logrus throughout go-tcmu.
package rlog

import (
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

// SetLevel configures the process-wide log level, called once by
// cmd/rascsi-go at startup from its --log-level flag.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

func WithField(key string, value interface{}) *logrus.Entry {
	return log.WithField(key, value)
}

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
