package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is initialized at import time so that
// packages and tests can log without any setup call.
var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)
}

// SetVerbose switches on debug-level logging.
func SetVerbose(verbose bool) {
	if verbose {
		Log.SetLevel(logrus.DebugLevel)
	}
}
