// Package log is the leveled logger every other package in this
// module writes through. The public shape (Logger, LogLevel, a
// package-level default logger) mirrors the server's original
// hand-rolled logger; the implementation underneath is zerolog.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger *Logger
	once          sync.Once
)

func init() {
	once.Do(func() {
		defaultLogger = New(os.Stdout, LogLevelDebug)
	})
}

// LogLevel is the set of severities this logger accepts.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

func (level LogLevel) String() string {
	switch level {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	case LogLevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

func (level LogLevel) zerolog() zerolog.Level {
	switch level {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ParseLogLevel parses a log level string into a LogLevel.
// Valid log levels are: error, warn, info, debug, trace.
func ParseLogLevel(level string) (LogLevel, error) {
	switch level {
	case "error":
		return LogLevelError, nil
	case "warn":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	case "trace":
		return LogLevelTrace, nil
	default:
		return LogLevelError, errUnknownLevel(level)
	}
}

type unknownLevelError string

func (e unknownLevelError) Error() string { return "unknown log level: " + string(e) }

func errUnknownLevel(level string) error { return unknownLevelError(level) }

// SetLevel changes the default logger's level.
func SetLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
	defaultLogger.Info("log level set to %s", level)
}

// Logger wraps a zerolog.Logger with the printf-style call shape the
// rest of this module expects.
type Logger struct {
	zl    zerolog.Logger
	level LogLevel
}

// New builds a Logger writing to out at the given level.
func New(out io.Writer, level LogLevel) *Logger {
	zl := zerolog.New(out).With().Timestamp().Logger().Level(level.zerolog())
	return &Logger{zl: zl, level: level}
}

// WithFields returns a derived Logger carrying structured fields on
// every subsequent call, used by the replication manager to scope
// log lines to a frame index or client slot.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger(), level: l.level}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

func (l *Logger) Error(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Trace(format string, args ...interface{}) { l.zl.Trace().Msgf(format, args...) }

func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Trace(format string, args ...interface{}) { defaultLogger.Trace(format, args...) }

// SetOutput redirects the default logger, used when onesync_logFile
// is configured.
func SetOutput(w io.Writer) {
	defaultLogger = New(w, defaultLogger.level)
}
