package sandbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// watchdog interrupts the VM when one outermost call into widget code runs
// longer than timeout. Nested calls share the outer deadline.
type watchdog struct {
	vm      *goja.Runtime
	timeout time.Duration
	depth   int // loop goroutine only

	mu    sync.Mutex
	armed bool
	gen   uint64
	timer *time.Timer
}

func newWatchdog(vm *goja.Runtime, timeout time.Duration) *watchdog {
	return &watchdog{vm: vm, timeout: timeout}
}

// arm starts the deadline for the outermost call and returns its release.
func (w *watchdog) arm() func() {
	w.depth++
	if w.depth == 1 {
		w.mu.Lock()
		w.armed = true
		w.gen++
		gen := w.gen
		w.timer = time.AfterFunc(w.timeout, func() { w.fire(gen) })
		w.mu.Unlock()
	}
	return w.release
}

func (w *watchdog) release() {
	w.depth--
	if w.depth > 0 {
		return
	}
	w.mu.Lock()
	w.armed = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	w.vm.ClearInterrupt()
}

func (w *watchdog) fire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed && w.gen == gen {
		w.vm.Interrupt(fmt.Sprintf("widget code ran longer than %v", w.timeout))
	}
}

// call invokes widget code under the watchdog.
func (i *Instance) call(fn goja.Callable, this goja.Value, args ...goja.Value) (goja.Value, error) {
	defer i.watch.arm()()
	return fn(this, args...)
}

// rethrow re-raises an error from a nested call inside a native function so
// the VM sees the original exception or interrupt.
func (i *Instance) rethrow(err error) {
	switch e := err.(type) {
	case *goja.Exception:
		panic(e)
	case *goja.InterruptedError:
		panic(e)
	default:
		panic(i.vm.NewGoError(err))
	}
}
