package pkg

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelErrOnly
	LogLevelDebug
)

type Fields = logrus.Fields

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.ErrorLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

func SetLogLevel(level LogLevel) {
	switch level {
	case LogLevelNone:
		logger.SetOutput(io.Discard)
		logger.SetLevel(logrus.PanicLevel)
	case LogLevelErrOnly:
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelDebug:
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.Infoln("log level set to", level)
}

// ParseLogLevel maps a config string onto a LogLevel.
// "info" and "warn" are treated as debug output since the error-only level drops them.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch s {
	case "none", "off":
		return LogLevelNone, true
	case "error":
		return LogLevelErrOnly, true
	case "debug", "info", "warn":
		return LogLevelDebug, true
	}
	return LogLevelErrOnly, false
}

func SetLogFormat(format string) {
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func WithFields(fields Fields) *logrus.Entry { return logger.WithFields(fields) }

var (
	InfoLog  = logger.Infoln
	ErrorLog = logger.Errorln
	FatalLog = logger.Fatalln
	WarnLog  = logger.Warnln
	DebugLog = logger.Debugln
)
