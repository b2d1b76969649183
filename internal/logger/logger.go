// Package logger configures the process-wide logrus logger.
package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init sets the level and output format of the standard logger. An unknown
// level leaves it at info.
func Init(level string, json bool) *log.Logger {
	l := log.StandardLogger()
	l.SetOutput(os.Stderr)
	if json {
		l.SetFormatter(&log.JSONFormatter{})
	} else {
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		l.WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// For returns an entry tagged with the component name.
func For(component string) *log.Entry {
	return log.WithField("component", component)
}
