package logging

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// It intentionally stays an interface so components can be handed a no-op
// logger in tests without pulling in any sink configuration.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// componentLogger writes levelled lines to a shared writer. Loggers for
// different components share one mutex so interleaved writes stay whole.
type componentLogger struct {
	mu        *sync.Mutex
	out       io.Writer
	level     Level
	component string
}

var (
	defaultMu  sync.Mutex
	defaultOut io.Writer = os.Stderr
)

// NewComponentLogger returns a logger scoped to a component, writing to
// stderr at info level.
func NewComponentLogger(component string) Logger {
	return &componentLogger{mu: &defaultMu, out: defaultOut, level: LevelInfo, component: component}
}

// New returns a component logger with an explicit sink and level. Tests pass
// a bytes.Buffer here.
func New(out io.Writer, level Level, component string) Logger {
	if out == nil {
		out = os.Stderr
	}
	return &componentLogger{mu: &sync.Mutex{}, out: out, level: level, component: component}
}

func (l *componentLogger) Debug(format string, args ...any) { l.write(LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.write(LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.write(LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.write(LevelError, format, args...) }

func (l *componentLogger) write(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	line := fmt.Sprintf("[%s] [%s] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		level, l.component, fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line)
}
