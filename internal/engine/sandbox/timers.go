package sandbox

import (
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

type timerRef struct {
	timeout  *eventloop.Timer
	interval *eventloop.Interval
}

// setupTimers replaces the loop's timer globals with ones that run under
// the watchdog and boundary and die with the mounted widget.
func (i *Instance) setupTimers(vm *goja.Runtime) error {
	globals := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout": func(call goja.FunctionCall) goja.Value {
			return i.setTimer(call, false)
		},
		"setInterval": func(call goja.FunctionCall) goja.Value {
			return i.setTimer(call, true)
		},
		"setImmediate": func(call goja.FunctionCall) goja.Value {
			args := append([]goja.Value{call.Argument(0), vm.ToValue(0)}, rest(call.Arguments, 1)...)
			return i.setTimer(goja.FunctionCall{This: call.This, Arguments: args}, false)
		},
		"clearTimeout":   i.clearTimer,
		"clearInterval":  i.clearTimer,
		"clearImmediate": i.clearTimer,
	}
	for name, fn := range globals {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func rest(args []goja.Value, from int) []goja.Value {
	if len(args) <= from {
		return nil
	}
	return args[from:]
}

func (i *Instance) setTimer(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(i.vm.NewTypeError("timer callback must be a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	if repeat && delay < time.Millisecond {
		delay = time.Millisecond
	}
	args := rest(call.Arguments, 2)

	i.nextTimer++
	id := i.nextTimer
	gen := i.hooks.gen
	run := func(*goja.Runtime) {
		if !repeat {
			delete(i.timers, id)
		}
		if gen != i.hooks.gen {
			return
		}
		i.step(func() error {
			_, err := i.call(fn, goja.Undefined(), args...)
			return err
		})
	}

	if repeat {
		i.timers[id] = timerRef{interval: i.loop.SetInterval(run, delay)}
	} else {
		i.timers[id] = timerRef{timeout: i.loop.SetTimeout(run, delay)}
	}
	return i.vm.ToValue(id)
}

func (i *Instance) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if t, ok := i.timers[id]; ok {
		i.stopTimer(t)
		delete(i.timers, id)
	}
	return goja.Undefined()
}

func (i *Instance) stopTimer(t timerRef) {
	if t.timeout != nil {
		i.loop.ClearTimeout(t.timeout)
	}
	if t.interval != nil {
		i.loop.ClearInterval(t.interval)
	}
}

func (i *Instance) clearTimers() {
	for id, t := range i.timers {
		i.stopTimer(t)
		delete(i.timers, id)
	}
}
