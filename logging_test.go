package gsplat

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "test", false)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Contains(t, buf.String(), "test")

	l.SetDebug(true)
	assert.True(t, l.DebugEnabled())
	l.Debugf("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	child := NewLoggerTo(&buf, "parent", false).With("child")
	child.Warnf("careful")
	assert.Contains(t, buf.String(), "child")
	assert.Contains(t, buf.String(), "careful")
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	if l == nil {
		t.Fatal("OrNop returned nil")
	}
	l.Errorf("goes nowhere")
	assert.False(t, l.DebugEnabled())

	d := NewDefaultLogger("x", false)
	assert.Same(t, d, OrNop(d))
}
