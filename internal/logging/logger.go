// Package logging builds the structured logger shared by the proxy and CLI.
//
// Usage:
//
//	log := logging.NewLogger("hlsproxy", "info", "json")
//	log.WithField("url", logging.Truncate(target)).Info("manifest rewritten")
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// MaxFieldLength is the length above which Truncate shortens a log value.
const MaxFieldLength = 70

// NewLogger creates a logrus logger for a named service writing to stdout.
// level is a logrus level name; an empty or unknown level means info.
// format is "json" or "text".
func NewLogger(service, level, format string) *logrus.Entry {
	return newLogger(os.Stdout, service, level, format)
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Entry {
	return newLogger(io.Discard, "discard", "panic", "text")
}

func newLogger(out io.Writer, service, level, format string) *logrus.Entry {
	log := logrus.New()
	if strings.EqualFold(format, "text") {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}
	log.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil || level == "" {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log.WithField("service", service)
}

// Truncate shortens s to MaxFieldLength bytes followed by "...".
func Truncate(s string) string {
	if len(s) > MaxFieldLength {
		return s[:MaxFieldLength] + "..."
	}
	return s
}
