package render

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// IndicatorState is either idle or running with a label.
type IndicatorState struct {
	Running bool
	Label   string
}

func (s IndicatorState) String() string {
	if !s.Running {
		return "idle"
	}
	return "running: " + s.Label
}

// LoadingIndicator is the single busy indicator of the terminal. Starting it
// again replaces the current label; Stop clears the line and is a no-op when
// idle.
type LoadingIndicator struct {
	writer   io.Writer
	frames   []string
	interval time.Duration

	mu    sync.Mutex
	label string
	stop  chan struct{}
	done  chan struct{}
}

func NewLoadingIndicator(writer io.Writer) *LoadingIndicator {
	return &LoadingIndicator{
		writer:   writer,
		frames:   spinner.MiniDot.Frames,
		interval: spinner.MiniDot.FPS,
	}
}

// Start stops any running animation and starts a new one with label.
func (l *LoadingIndicator) Start(label string) {
	l.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.label = label
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(label, l.stop, l.done)
}

// Stop blocks until the animation goroutine has exited and the line is
// cleared.
func (l *LoadingIndicator) Stop() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.label = ""
	l.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (l *LoadingIndicator) State() IndicatorState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return IndicatorState{Running: l.stop != nil, Label: l.label}
}

func (l *LoadingIndicator) run(label string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	frameIndex := 0
	l.renderFrame(frameIndex, label)

	for {
		select {
		case <-stop:
			fmt.Fprint(l.writer, "\r\033[K")
			return
		case <-ticker.C:
			frameIndex = (frameIndex + 1) % len(l.frames)
			l.renderFrame(frameIndex, label)
		}
	}
}

func (l *LoadingIndicator) renderFrame(frameIndex int, label string) {
	frame := ToolPendingStyle.Render(l.frames[frameIndex])
	fmt.Fprintf(l.writer, "\r\033[K%s %s", frame, SuccessStyle.Render(label))
}
