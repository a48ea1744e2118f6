// Package logging provides Altilium's leveled logger. No third-party
// logging library appears anywhere in the retrieval corpus (the teacher's
// internal/common/logger.go wraps the standard "log" package directly,
// and cc-backend's pkg/log does the same) so this follows suit rather
// than reaching for one that nothing in the examples ever used.
package logging

import (
	"io"
	"log"
	"os"
	"strings"
)

// Level orders Altilium's four log levels, matching the teacher's
// DEBUG/INFO/WARN/ERROR tiering.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger wraps a standard log.Logger with a minimum level filter and a
// component prefix, so every subsystem's output is attributable.
type Logger struct {
	min  Level
	std  *log.Logger
	name string
}

// New returns a Logger writing to w, prefixed with name, filtering out
// anything below min.
func New(w io.Writer, name string, min Level) *Logger {
	return &Logger{
		min:  min,
		std:  log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		name: name,
	}
}

// Default returns a Logger writing to stderr at the given level, the
// shape every long-running Altilium process constructs at startup.
func Default(name string, min Level) *Logger {
	return New(os.Stderr, name, min)
}

func (l *Logger) log(lvl Level, format string, args ...interface{}) {
	if lvl < l.min {
		return
	}
	l.std.Printf("[%s] [%s] "+format, append([]interface{}{lvl, l.name}, args...)...)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(Error, format, args...) }

// With returns a child Logger sharing the same level and writer but a
// more specific component name, e.g. logger.With("aof").
func (l *Logger) With(sub string) *Logger {
	return &Logger{min: l.min, std: l.std, name: l.name + "." + sub}
}
