package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Logger is a logrus logger with printf-style level helpers.
type Logger struct {
	*logrus.Logger
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.Logger.Infof(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.Logger.Debugf(format, args...)
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.Logger.Fatalf(format, args...)
}

func (l *Logger) Print(format string, args ...interface{}) {
	l.Logger.Printf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.Logger.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.Logger.Errorf(format, args...)
}

func (l *Logger) Trace(format string, args ...interface{}) {
	l.Logger.Tracef(format, args...)
}

// Fields are structured key/value pairs attached to an entry.
type Fields = logrus.Fields

// Entry is a logrus entry carrying fields, with the Logger's helpers.
type Entry struct {
	*logrus.Entry
}

// With returns an entry that tags every line with fields.
func (l *Logger) With(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(fields)}
}

// Worker tags lines with the id of the scheduler worker they concern.
func (l *Logger) Worker(id int) *Entry {
	return l.With(Fields{"worker": id})
}

func (e *Entry) With(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(fields)}
}

func (e *Entry) Info(format string, args ...interface{}) {
	e.Entry.Infof(format, args...)
}

func (e *Entry) Debug(format string, args ...interface{}) {
	e.Entry.Debugf(format, args...)
}

func (e *Entry) Warn(format string, args ...interface{}) {
	e.Entry.Warnf(format, args...)
}

func (e *Entry) Error(format string, args ...interface{}) {
	e.Entry.Errorf(format, args...)
}

// New builds a logger writing to stderr at the named level. Unknown level
// names fall back to info.
func New(level string) *Logger {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetOutput(colorable.NewColorableStderr())
	logger.SetReportCaller(true)
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:            isatty.IsTerminal(os.Stderr.Fd()),
		TimestampFormat:        "2006-01-02 15:04:05",
		DisableTimestamp:       false,
		DisableLevelTruncation: false,
		PadLevelText:           true,
		QuoteEmptyFields:       false,
		FieldMap:               logrus.FieldMap{},

		FullTimestamp: true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			_, file := filepath.Split(f.File)
			return "", fmt.Sprintf("%s:%d", file, f.Line)
		},
		EnvironmentOverrideColors: true,
	})

	return &Logger{
		Logger: logger,
	}
}

var std atomic.Pointer[Logger]

// L returns the process-wide logger.
func L() *Logger {
	if l := std.Load(); l != nil {
		return l
	}
	std.CompareAndSwap(nil, New("info"))
	return std.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l != nil {
		std.Store(l)
	}
}
