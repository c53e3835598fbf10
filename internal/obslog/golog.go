package obslog

import (
	"fmt"
	"strings"

	"github.com/kataras/golog"
)

// GologLogger implements Logger over kataras/golog, the logging library the
// teacher repo depends on (log/golog_logger.go).
type GologLogger struct {
	logger *golog.Logger
	level  Level
	fields []any
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog.Logger. Pass golog.Default to reuse
// the package-wide instance, or a fresh *golog.Logger for isolation.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	return &GologLogger{logger: logger, level: LevelInfo}
}

func (l *GologLogger) format(msg string, kv []any) string {
	if len(l.fields) == 0 && len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	writePairs(&sb, l.fields)
	writePairs(&sb, kv)
	return sb.String()
}

func writePairs(sb *strings.Builder, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(sb, " %v=%v", kv[i], kv[i+1])
	}
}

func (l *GologLogger) Debug(msg string, kv ...any) {
	if l.level <= LevelDebug {
		l.logger.Debug(l.format(msg, kv))
	}
}

func (l *GologLogger) Info(msg string, kv ...any) {
	if l.level <= LevelInfo {
		l.logger.Info(l.format(msg, kv))
	}
}

func (l *GologLogger) Warn(msg string, kv ...any) {
	if l.level <= LevelWarn {
		l.logger.Warn(l.format(msg, kv))
	}
}

func (l *GologLogger) Error(msg string, kv ...any) {
	if l.level <= LevelError {
		l.logger.Error(l.format(msg, kv))
	}
}

func (l *GologLogger) SetLevel(level Level) {
	l.level = level
	gologLevel := "info"
	switch level {
	case LevelDebug:
		gologLevel = "debug"
	case LevelInfo:
		gologLevel = "info"
	case LevelWarn:
		gologLevel = "warn"
	case LevelError:
		gologLevel = "error"
	case LevelNone:
		gologLevel = "disable"
	}
	l.logger.SetLevel(gologLevel)
}

func (l *GologLogger) With(kv ...any) Logger {
	child := &GologLogger{logger: l.logger, level: l.level}
	child.fields = append(append([]any{}, l.fields...), kv...)
	return child
}
