package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)
	Logf("walkers: %d", 10)
	assert.Equal(t, []string{"walkers: 10"}, *lines)

	// nil installs a no-op logger
	SetLogger(nil)
	Logf("dropped")
	assert.Len(t, *lines, 1)
}

func TestWarnf_Prefix(t *testing.T) {
	lines := capture(t)
	Warnf("raising walkers from %d to %d", 1, 2)
	assert.Equal(t, []string{"WARNING: raising walkers from 1 to 2"}, *lines)
}

func TestDebugf_RespectsVerbose(t *testing.T) {
	lines := capture(t)
	defer SetVerbose(false)

	Debugf("quiet")
	assert.Empty(t, *lines)

	SetVerbose(true)
	Debugf("iteration %d", 3)
	assert.Equal(t, []string{"iteration 3"}, *lines)
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}
