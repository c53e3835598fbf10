package obslog

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func newRecordingLogger(buf *bytes.Buffer) *GologLogger {
	gl := golog.New()
	gl.SetOutput(buf)
	gl.SetTimeFormat("")
	l := NewGologLogger(gl)
	l.SetLevel(LevelDebug)
	return l
}

func TestInfoWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	l := newRecordingLogger(&buf)
	l.Info("workflow started")
	assert.Contains(t, buf.String(), "workflow started")
}

func TestLevelGatingSuppressesLowerSeverity(t *testing.T) {
	var buf bytes.Buffer
	l := newRecordingLogger(&buf)
	l.SetLevel(LevelError)
	l.Info("should not appear")
	l.Error("should appear")
	assert.NotContains(t, buf.String(), "should not appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestWithAttachesPersistentFields(t *testing.T) {
	var buf bytes.Buffer
	l := newRecordingLogger(&buf)
	child := l.With("workflow_id", "w1")
	child.Info("layer started")
	assert.Contains(t, buf.String(), "workflow_id=w1")
	assert.Contains(t, buf.String(), "layer started")
}

func TestInlineKVPairsAreAppended(t *testing.T) {
	var buf bytes.Buffer
	l := newRecordingLogger(&buf)
	l.Info("task completed", "task_id", "task_A", "status", "success")
	assert.Contains(t, buf.String(), "task_id=task_A")
	assert.Contains(t, buf.String(), "status=success")
}

func TestNoOpSatisfiesLoggerAndDoesNothing(t *testing.T) {
	var l Logger = NoOp{}
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	l.SetLevel(LevelDebug)
	assert.NotNil(t, l.With("a", "b"))
}
