package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process-wide logger. JSON output in production,
// human-readable text with debug level everywhere else.
func New(output io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(output)
	l.SetFormatter(new(logrus.JSONFormatter))
	l.SetLevel(logrus.InfoLevel)

	if os.Getenv("APP_ENV") != "production" {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(new(logrus.TextFormatter))
	}

	return l
}
