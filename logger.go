package spotapi

import (
	"io"
	"os"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

// NewLogger returns the package's default colorized console logger as an
// entry that components can further scope with WithField.
func NewLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		FieldsOrder:     []string{"component", "event"},
		TimestampFormat: time.TimeOnly,
	})
	return logrus.NewEntry(l)
}

// noopLogger discards everything; used when a Config carries no logger.
func noopLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
