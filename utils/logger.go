package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		// microseconds, frame updates arrive every 100ms
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	return l
}

func SetVerbose(verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

func IsVerbose() bool {
	return logger.IsLevelEnabled(logrus.DebugLevel)
}

// SetOutput redirects all log output, mostly useful in tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Verbose(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// WithFields returns an entry carrying structured fields, e.g. the tracked window id.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}
