// Package logger holds the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the global logger. It is usable before Init with logrus defaults.
var Log = logrus.New()

// Init configures the global logger. level is a logrus level name ("debug",
// "info", ...); unknown names fall back to info. format "json" selects the
// JSON formatter, anything else the colored text formatter.
func Init(level, format string) {
	InitWithOutput(level, format, os.Stdout)
}

// InitWithOutput is Init writing to w.
func InitWithOutput(level, format string, w io.Writer) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	if strings.ToLower(format) == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
	}

	Log.SetOutput(w)
}

// Component returns an entry tagged with the subsystem name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
