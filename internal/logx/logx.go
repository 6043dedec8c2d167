// Package logx provides the glue's leveled logging over the standard
// library logger. The level is adjustable at runtime so a config reload
// can apply a new log level without restarting the process.
package logx

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

// ParseLevel maps a config string to a Level. Unknown values fall back
// to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, level-filtered lines in the form
//
//	2006-01-02T15:04:05Z INFO component: message
type Logger struct {
	out   *log.Logger
	level atomic.Int32
}

func New(w io.Writer, level Level) *Logger {
	l := &Logger{out: log.New(w, "", 0)}
	l.level.Store(int32(level))
	return l
}

// SetLevel changes the minimum level. Safe for concurrent use.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

func (l *Logger) Logf(level Level, component, format string, args ...any) {
	if level < l.Level() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%s %s %s: %s", time.Now().UTC().Format(time.RFC3339), level, component, msg)
}

// Component returns a logger bound to a component name, matching how
// each daemon subsystem logs under its own prefix.
func (l *Logger) Component(name string) *ComponentLogger {
	return &ComponentLogger{parent: l, name: name}
}

type ComponentLogger struct {
	parent *Logger
	name   string
}

func (c *ComponentLogger) Debugf(format string, args ...any) {
	c.parent.Logf(LevelDebug, c.name, format, args...)
}

func (c *ComponentLogger) Infof(format string, args ...any) {
	c.parent.Logf(LevelInfo, c.name, format, args...)
}

func (c *ComponentLogger) Warnf(format string, args ...any) {
	c.parent.Logf(LevelWarn, c.name, format, args...)
}

func (c *ComponentLogger) Errorf(format string, args ...any) {
	c.parent.Logf(LevelError, c.name, format, args...)
}
