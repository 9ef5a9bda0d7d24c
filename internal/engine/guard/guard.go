// Package guard detects widgets that re-render without bound.
//
// Every factory invocation ticks the instance's guard. Ticks are counted in a
// fixed window that restarts once it is older than the window length; a count
// above the threshold inside one window is a render loop.
package guard

import (
	"fmt"
	"sync"
	"time"
)

// Defaults used when a guard is built with zero values.
const (
	DefaultThreshold = 170
	DefaultWindow    = time.Second
)

// Window is the per-instance render counter.
type Window struct {
	Count     int
	StartedAt time.Time
}

// RenderLoopError reports a tripped guard.
type RenderLoopError struct {
	Count     int
	Threshold int
	Window    time.Duration
}

func (e *RenderLoopError) Error() string {
	return fmt.Sprintf(
		"Render loop detected: the widget rendered %d times within %s (limit %d). "+
			"A state update is probably running on every render; move it into an effect with dependencies or an event handler.",
		e.Count, e.Window, e.Threshold)
}

// Guard owns one Window. It is safe for concurrent use, though an instance
// only ticks from its event loop.
type Guard struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	now       func() time.Time
	current   Window
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// New creates a guard. Non-positive values fall back to the defaults.
func New(threshold int, window time.Duration, opts ...Option) *Guard {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	g := &Guard{
		threshold: threshold,
		window:    window,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tick records one render and fails once the window holds more renders than
// the threshold.
func (g *Guard) Tick() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.current.Count++
	if now.Sub(g.current.StartedAt) > g.window {
		g.current = Window{Count: 1, StartedAt: now}
	}

	if g.current.Count > g.threshold {
		return &RenderLoopError{
			Count:     g.current.Count,
			Threshold: g.threshold,
			Window:    g.window,
		}
	}
	return nil
}

// Window returns a snapshot of the current window.
func (g *Guard) Window() Window {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Threshold returns the configured limit.
func (g *Guard) Threshold() int {
	return g.threshold
}

// Reset forgets the current window.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = Window{}
}
