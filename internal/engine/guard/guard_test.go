package guard

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFake() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestFirstTickOpensWindow(t *testing.T) {
	clock := newFake()
	g := New(170, time.Second, WithClock(clock.now))

	require.NoError(t, g.Tick())
	w := g.Window()
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, clock.t, w.StartedAt)
}

func TestTripsInsideOneWindow(t *testing.T) {
	clock := newFake()
	g := New(170, time.Second, WithClock(clock.now))

	var err error
	calls := 0
	for calls < 201 && err == nil {
		err = g.Tick()
		calls++
		clock.advance(4 * time.Millisecond)
	}

	require.Error(t, err)
	var loop *RenderLoopError
	require.True(t, errors.As(err, &loop))
	assert.Equal(t, 171, calls)
	assert.Equal(t, 171, loop.Count)
	assert.Equal(t, 170, loop.Threshold)
	assert.Contains(t, err.Error(), "Render loop detected")
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	clock := newFake()
	g := New(3, time.Second, WithClock(clock.now))

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Tick())
	}
	clock.advance(time.Second + time.Millisecond)
	require.NoError(t, g.Tick())
	assert.Equal(t, 1, g.Window().Count)

	// Exactly one window later does not restart.
	for i := 0; i < 2; i++ {
		require.NoError(t, g.Tick())
	}
	clock.advance(time.Second)
	assert.Error(t, g.Tick())
}

func TestSteadyRateNeverTrips(t *testing.T) {
	clock := newFake()
	g := New(170, time.Second, WithClock(clock.now))

	for i := 0; i < 600; i++ {
		require.NoError(t, g.Tick(), "tick %d", i)
		clock.advance(100 * time.Millisecond)
	}
}

func TestDefaultsAndReset(t *testing.T) {
	g := New(0, 0)
	assert.Equal(t, DefaultThreshold, g.Threshold())
	require.NoError(t, g.Tick())
	g.Reset()
	assert.Equal(t, Window{}, g.Window())
}

func TestGuardProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("more than 200 ticks inside one second always trip", prop.ForAll(
		func(n int, spacingMicros int64) bool {
			clock := newFake()
			g := New(170, time.Second, WithClock(clock.now))
			spacing := time.Duration(spacingMicros) * time.Microsecond
			for i := 0; i < n; i++ {
				if g.Tick() != nil {
					return true
				}
				clock.advance(spacing)
			}
			return false
		},
		gen.IntRange(201, 400),
		// n*spacing stays under one second
		gen.Int64Range(0, 2400),
	))

	properties.Property("ten renders per second never trip", prop.ForAll(
		func(seconds int) bool {
			clock := newFake()
			g := New(170, time.Second, WithClock(clock.now))
			for i := 0; i < seconds*10; i++ {
				if g.Tick() != nil {
					return false
				}
				clock.advance(100 * time.Millisecond)
			}
			return true
		},
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t)
}
