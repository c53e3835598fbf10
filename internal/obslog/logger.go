// Package obslog is the structured, leveled logging facade every component
// in this module takes via constructor injection — never a package-level
// global, unlike the teacher's log package, since a long-lived executor
// process may run many independent workflows concurrently and global log
// state would conflate their output. Grounded on teacher's log/logger.go
// Logger interface and log/golog_logger.go golog adapter.
package obslog

// Level is logging severity, mirroring teacher's log.LogLevel.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Logger is the structured logging interface every component depends on.
// Fields are passed as alternating key/value pairs, matching golog's own
// Fields-less call convention while still allowing structured data.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	SetLevel(level Level)
	// With returns a child logger that prepends the given key/value pairs
	// to every subsequent call, so callers can attach workflow_id/task_id
	// context once instead of repeating it at every call site.
	With(kv ...any) Logger
}
