package log

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

type LogLevel string

const (
	FatalLevel    = "fatal"
	AlertLevel    = "alert"
	ErrorLevel    = "error"
	WarningLevel  = "warn"
	InfoLevel     = "info"
	DebugLevel    = "debug"
	TraceLevel    = "trace"
	DisabledLevel = "disabled"
)

var levelmap = map[LogLevel]int{
	TraceLevel:    6,
	DebugLevel:    5,
	InfoLevel:     4,
	WarningLevel:  3,
	ErrorLevel:    2,
	AlertLevel:    1,
	FatalLevel:    0,
	DisabledLevel: -1,
}

type logWrapper struct {
	mu    sync.Mutex
	log   *log.Logger
	level LogLevel
}

func (l *logWrapper) setLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *logWrapper) enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ShouldLog(level, l.level)
}

func (l *logWrapper) Printf(level LogLevel, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	l.print(level, fmt.Sprintf(format, args...))
}

func (l *logWrapper) Println(level LogLevel, args ...any) {
	if !l.enabled(level) {
		return
	}
	l.print(level, args...)
}

func (l *logWrapper) print(level LogLevel, args ...any) {
	ts := time.Now().Local()
	timeStr := fmt.Sprintf("%s.%03d", ts.Format("2006-01-02 15:04:05"), ts.Nanosecond()/1000000)
	levelStr := fmt.Sprintf("- %5s -", level)
	allArgs := []any{timeStr, levelStr}
	allArgs = append(allArgs, args...)
	l.log.Println(allArgs...)
}

var (
	stdoutLog = &logWrapper{log: log.New(os.Stdout, "", 0), level: InfoLevel}
	stderrLog = &logWrapper{log: log.New(os.Stderr, "", 0), level: InfoLevel}
)

// Set the maximum level of messages to emit.
func SetLevel(loglevel LogLevel) error {
	if !ValidLogLevel(loglevel) {
		return fmt.Errorf("no such log level %s", loglevel)
	}

	stdoutLog.setLevel(loglevel)
	stderrLog.setLevel(loglevel)
	return nil
}

// Redirect all output, mostly for tests.
func SetOutput(w io.Writer) {
	stdoutLog.log.SetOutput(w)
	stderrLog.log.SetOutput(w)
}

func ValidLogLevel(level LogLevel) bool {
	_, ok := levelmap[level]
	return ok
}

func ShouldLog(logLevel, enabled LogLevel) bool {
	if !ValidLogLevel(logLevel) || !ValidLogLevel(enabled) {
		return false
	}
	return levelmap[logLevel] <= levelmap[enabled]
}

func Trace(args ...any) {
	stdoutLog.Println(TraceLevel, args...)
}

func Debug(args ...any) {
	stdoutLog.Println(DebugLevel, args...)
}

func Info(args ...any) {
	stdoutLog.Println(InfoLevel, args...)
}

func Warn(args ...any) {
	stderrLog.Println(WarningLevel, args...)
}

func Error(args ...any) {
	stderrLog.Println(ErrorLevel, args...)
}

// Alert reports a condition an operator must act on, such as a run
// that stopped being scheduled. Alerts are emitted unless logging is disabled.
func Alert(args ...any) {
	stderrLog.Println(AlertLevel, args...)
}

func Fatal(args ...any) {
	stderrLog.Println(FatalLevel, args...)
	debug.PrintStack()
	os.Exit(1)
}

func Tracef(format string, args ...any) {
	stdoutLog.Printf(TraceLevel, format, args...)
}

func Debugf(format string, args ...any) {
	stdoutLog.Printf(DebugLevel, format, args...)
}

func Infof(format string, args ...any) {
	stdoutLog.Printf(InfoLevel, format, args...)
}

func Warnf(format string, args ...any) {
	stderrLog.Printf(WarningLevel, format, args...)
}

func Errorf(format string, args ...any) {
	stderrLog.Printf(ErrorLevel, format, args...)
}

func Alertf(format string, args ...any) {
	stderrLog.Printf(AlertLevel, format, args...)
}

func Fatalf(format string, args ...any) {
	stderrLog.Printf(FatalLevel, format, args...)
	debug.PrintStack()
	os.Exit(1)
}

type writeFunc func([]byte) (int, error)

func (fn writeFunc) Write(data []byte) (int, error) {
	return fn(data)
}

// NewLogger returns a standard library logger that forwards to this package
// at the given level. Used to plug third-party loggers into ours.
func NewLogger(level LogLevel) *log.Logger {
	return log.New(NewLogWriter(level), "", 0)
}

func NewLogWriter(level LogLevel) io.Writer {
	return writeFunc(func(data []byte) (int, error) {
		msg := string(data)
		if n := len(msg); n > 0 && msg[n-1] == '\n' {
			msg = msg[:n-1]
		}
		switch level {
		case TraceLevel, DebugLevel, InfoLevel:
			stdoutLog.Println(level, msg)
		default:
			stderrLog.Println(level, msg)
		}
		return len(data), nil
	})
}

// DebugError logs an error and the chain of errors it wraps.
func DebugError(err error) {
	indent := 1

	Debug(err.Error())

	for {
		if err = errors.Unwrap(err); err == nil {
			break
		}

		Debugf("| %d: %s", indent, err.Error())
		indent += 1
	}
}
