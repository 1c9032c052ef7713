// Package-level structured logging, mirroring eventloop's own
// SetStructuredLogger/globalLogger design: a pluggable interface, a no-op
// default, and a small set of categories the reactor reports on internally.
package evcore

import (
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	stumpy "github.com/joeycumines/logiface-stumpy"
)

// LogLevel mirrors the severities the reactor reports diagnostics at.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LogEntry is a single structured diagnostic emitted by a Reactor.
type LogEntry struct {
	Level     LogLevel
	Category  string // "dispatch" or "reinit"
	Message   string
	Err       error
	Fields    map[string]any
	Timestamp time.Time
}

// Logger is the structured logging interface. Reactor instances hold one
// set via WithLogger; the package-level default is a no-op, matching the
// teacher's "logging is opt-in" stance.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

type noopLogger struct{}

func (noopLogger) Log(LogEntry)          {}
func (noopLogger) IsEnabled(LogLevel) bool { return false }

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetStructuredLogger sets the package-wide default Logger used by any
// Reactor created without an explicit WithLogger option.
func SetStructuredLogger(l Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = l
}

func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return noopLogger{}
}

// logifaceLogger adapts the reactor's small Logger interface onto
// logiface, writing JSON lines via the stumpy backend. This is the
// module's ambient-stack logging implementation; construct one with
// NewLogifaceLogger and pass it via WithLogger, or register it globally
// with SetStructuredLogger.
type logifaceLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewLogifaceLogger builds a Logger backed by logiface + the stumpy JSON
// writer, at the given minimum level.
func NewLogifaceLogger(level LogLevel) Logger {
	return &logifaceLogger{
		l: logiface.New[*stumpy.Event](
			stumpy.WithStumpy(),
			logiface.WithLevel[*stumpy.Event](toLogifaceLevel(level)),
		),
	}
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	default:
		return logiface.LevelError
	}
}

func (a *logifaceLogger) IsEnabled(level LogLevel) bool {
	switch level {
	case LevelDebug:
		return a.l.Debug().Enabled()
	case LevelInfo:
		return a.l.Info().Enabled()
	case LevelWarn:
		return a.l.Warning().Enabled()
	default:
		return a.l.Err().Enabled()
	}
}

func (a *logifaceLogger) Log(entry LogEntry) {
	var b *logiface.Builder[*stumpy.Event]
	switch entry.Level {
	case LevelDebug:
		b = a.l.Debug()
	case LevelInfo:
		b = a.l.Info()
	case LevelWarn:
		b = a.l.Warning()
	default:
		b = a.l.Err()
	}
	if !b.Enabled() {
		return
	}
	b = b.Str("category", entry.Category)
	for k, v := range entry.Fields {
		b = b.Interface(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

// logf is the reactor's internal diagnostic emission helper.
func (r *Reactor) logf(level LogLevel, category, message string, err error, fields map[string]any) {
	lg := r.logger
	if lg == nil {
		lg = getGlobalLogger()
	}
	if !lg.IsEnabled(level) {
		return
	}
	lg.Log(LogEntry{
		Level:     level,
		Category:  category,
		Message:   message,
		Err:       err,
		Fields:    fields,
		Timestamp: time.Now(),
	})
}
