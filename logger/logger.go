package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

func init() {
	Init("info")
}

// Init configures the package logger. Unknown levels fall back to info.
func Init(level string) {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        "15:04:05",
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	log = l
}

// Logger exposes the underlying logrus instance for callers that need fields.
func Logger() *logrus.Logger {
	return log
}

func Debug(args ...interface{}) { log.Debug(args...) }
func Info(args ...interface{})  { log.Info(args...) }
func Warn(args ...interface{})  { log.Warn(args...) }
func Error(args ...interface{}) { log.Error(args...) }
func Fatal(args ...interface{}) { log.Fatal(args...) }

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }

// Sink is the leveled reporting surface used for findings. Display lines are
// plain progress, Success marks a discovery and Highlight marks a secret.
type Sink struct {
	entry *logrus.Entry
}

// NewSink returns a Sink bound to the package logger with an optional module tag.
func NewSink(module string) *Sink {
	entry := logrus.NewEntry(log)
	if module != "" {
		entry = entry.WithField("module", module)
	}
	return &Sink{entry: entry}
}

func (s *Sink) Display(msg string) {
	s.entry.Info(msg)
}

func (s *Sink) Success(msg string) {
	s.entry.WithField("status", "success").Info(msg)
}

func (s *Sink) Highlight(msg string) {
	s.entry.WithField("status", "highlight").Warn(msg)
}
