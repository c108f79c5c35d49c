package render

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer is a bytes.Buffer safe for the indicator's goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoadingIndicator_StartStop(t *testing.T) {
	var buf syncBuffer
	indicator := NewLoadingIndicator(&buf)

	assert.Equal(t, IndicatorState{}, indicator.State())
	assert.Equal(t, "idle", indicator.State().String())

	indicator.Start("Thinking")
	assert.Equal(t, IndicatorState{Running: true, Label: "Thinking"}, indicator.State())

	time.Sleep(50 * time.Millisecond)
	indicator.Stop()

	assert.False(t, indicator.State().Running)
	output := buf.String()
	assert.Contains(t, output, "Thinking")
	assert.True(t, strings.HasSuffix(output, "\r\033[K"), "line should be cleared on stop")
}

func TestLoadingIndicator_StopWhenIdle(t *testing.T) {
	var buf syncBuffer
	indicator := NewLoadingIndicator(&buf)

	indicator.Stop()
	indicator.Stop()
	assert.Empty(t, buf.String())
}

func TestLoadingIndicator_StartReplacesLabel(t *testing.T) {
	var buf syncBuffer
	indicator := NewLoadingIndicator(&buf)

	indicator.Start("Processing your request...")
	indicator.Start("Executing Shell")
	assert.Equal(t, "running: Executing Shell", indicator.State().String())

	indicator.Stop()
	indicator.Stop()
	assert.Equal(t, IndicatorState{}, indicator.State())
}

func TestLoadingIndicator_ConcurrentUse(t *testing.T) {
	var buf syncBuffer
	indicator := NewLoadingIndicator(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			indicator.Start("busy")
			indicator.Stop()
		}()
	}
	wg.Wait()
	indicator.Stop()
	assert.False(t, indicator.State().Running)
}
