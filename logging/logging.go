// Package logging provides the leveled key/value logger used across the ledger.
//
// Records are written one per line in logfmt:
//
//	level=info msg="scheduled configuration" actual_from=10 hash=bafk...
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/etnz/logfmt"
)

// Logger is the logging surface libraries accept. kv holds alternating keys and values.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
}

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

type logger struct {
	mu    sync.Mutex
	w     io.Writer
	min   Level
	now   func() time.Time
	attrs []interface{}
}

// New returns a Logger writing records at or above min to w.
func New(w io.Writer, min Level) Logger {
	return &logger{w: w, min: min, now: time.Now}
}

// With returns a Logger that adds kv to every record. Loggers not built by
// New are returned unchanged.
func With(l Logger, kv ...interface{}) Logger {
	base, ok := l.(*logger)
	if !ok {
		return l
	}
	return &logger{
		w:     base.w,
		min:   base.min,
		now:   base.now,
		attrs: append(append([]interface{}(nil), base.attrs...), kv...),
	}
}

func (l *logger) Debug(msg string, kv ...interface{}) { l.log(LevelDebug, msg, kv) }
func (l *logger) Info(msg string, kv ...interface{})  { l.log(LevelInfo, msg, kv) }
func (l *logger) Warn(msg string, kv ...interface{})  { l.log(LevelWarn, msg, kv) }
func (l *logger) Error(msg string, kv ...interface{}) { l.log(LevelError, msg, kv) }

func (l *logger) log(level Level, msg string, kv []interface{}) {
	if level < l.min {
		return
	}
	line := Format(l.now(), level, msg, append(append([]interface{}(nil), l.attrs...), kv...))
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, line+"\n")
}

// Format renders one record. A trailing key without a value is logged under
// "!badkey".
func Format(ts time.Time, level Level, msg string, kv []interface{}) string {
	rec := logfmt.Rec()
	if !ts.IsZero() {
		rec = rec.Q("ts", ts.UTC().Format(time.RFC3339Nano))
	}
	rec = rec.Q("level", level.String())
	rec = rec.Q("msg", msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			rec = rec.Q("!badkey", fmt.Sprint(kv[i]))
			break
		}
		rec = rec.Q(fmt.Sprint(kv[i]), fmt.Sprint(kv[i+1]))
	}
	return rec.String()
}

type nop struct{}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nop{} }

func (nop) Debug(string, ...interface{}) {}
func (nop) Info(string, ...interface{})  {}
func (nop) Warn(string, ...interface{})  {}
func (nop) Error(string, ...interface{}) {}
