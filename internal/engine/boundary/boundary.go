// Package boundary contains widget failures.
//
// A Boundary is Healthy until a step fails; it then stays Crashed, whatever
// else happens to the instance, until it is reset with a different source
// than the one that crashed. Failures are classified into a small tagged set
// so the host can render the right fallback and route the right report.
package boundary

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/guard"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/loader"
	"github.com/dop251/goja"
)

// Kind tags a failure.
type Kind int

const (
	KindNone Kind = iota
	KindCompile
	KindRenderLoop
	KindRuntime
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindRenderLoop:
		return "render_loop"
	case KindRuntime:
		return "runtime"
	case KindTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// State of a boundary.
type State int

const (
	Healthy State = iota
	Crashed
)

func (s State) String() string {
	if s == Crashed {
		return "crashed"
	}
	return "healthy"
}

// Record describes the last failure. The zero value is a healthy record.
type Record struct {
	HasError bool
	Message  string
	Kind     Kind
	At       time.Time
}

// PanicError wraps a recovered Go panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Classify maps an error onto a failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var cerr *loader.CompileError
	var lerr *guard.RenderLoopError
	var ierr *goja.InterruptedError
	switch {
	case errors.As(err, &cerr):
		return KindCompile
	case errors.As(err, &lerr):
		return KindRenderLoop
	case errors.As(err, &ierr):
		return KindTimeout
	default:
		return KindRuntime
	}
}

// Message extracts the text shown to the user. Script exceptions yield the
// thrown value's message, so `throw new Error("boom")` reads "boom". It must
// run on the goroutine that owns the VM the exception came from.
func Message(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		if obj, ok := exc.Value().(*goja.Object); ok {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
				return m.String()
			}
		}
		if v := exc.Value(); v != nil {
			return v.String()
		}
	}
	var ierr *goja.InterruptedError
	if errors.As(err, &ierr) {
		return fmt.Sprintf("Execution timed out: %v", ierr.Value())
	}
	return err.Error()
}

// Boundary tracks one instance's crash state.
type Boundary struct {
	mu       sync.RWMutex
	record   Record
	source   string
	now      func() time.Time
	onChange func(State, Record)
}

// Option configures a Boundary.
type Option func(*Boundary)

// WithClock replaces time.Now for crash timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Boundary) { b.now = now }
}

// OnChange registers a callback invoked on every state transition.
func OnChange(fn func(State, Record)) Option {
	return func(b *Boundary) { b.onChange = fn }
}

// New creates a healthy boundary.
func New(opts ...Option) *Boundary {
	b := &Boundary{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State reports Healthy or Crashed.
func (b *Boundary) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.record.HasError {
		return Crashed
	}
	return Healthy
}

// Crashed is shorthand for State() == Crashed.
func (b *Boundary) Crashed() bool {
	return b.State() == Crashed
}

// Record returns the current failure record.
func (b *Boundary) Record() Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.record
}

// Source returns the source the boundary was last reset or crashed with.
func (b *Boundary) Source() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.source
}

// Reset clears a crash when source differs from the one that crashed. It
// reports whether the boundary went back to Healthy.
func (b *Boundary) Reset(source string) bool {
	b.mu.Lock()
	if source == b.source {
		b.mu.Unlock()
		return false
	}
	b.source = source
	if !b.record.HasError {
		b.mu.Unlock()
		return false
	}
	b.record = Record{}
	cb := b.onChange
	b.mu.Unlock()

	if cb != nil {
		cb(Healthy, Record{})
	}
	return true
}

// Fail moves the boundary to Crashed. A boundary that is already crashed
// keeps its first record.
func (b *Boundary) Fail(err error) Record {
	if err == nil {
		return b.Record()
	}
	b.mu.Lock()
	if b.record.HasError {
		rec := b.record
		b.mu.Unlock()
		return rec
	}
	b.record = Record{
		HasError: true,
		Message:  Message(err),
		Kind:     Classify(err),
		At:       b.now(),
	}
	rec := b.record
	cb := b.onChange
	b.mu.Unlock()

	if cb != nil {
		cb(Crashed, rec)
	}
	return rec
}

// Guard runs one step, converting a returned error or a panic into a
// failure. It returns the failure, or nil when the step succeeded.
func (b *Boundary) Guard(step func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
			b.Fail(err)
		}
	}()
	if err = step(); err != nil {
		b.Fail(err)
	}
	return err
}

// Contain runs fn and swallows any panic, returning fallback instead. It is
// used for building fallback views, which must not fail the host either.
func Contain[T any](fn func() T, fallback T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			out = fallback
		}
	}()
	return fn()
}
