package sandbox

import (
	"strconv"

	"github.com/dop251/goja"
)

type hookKind int

const (
	hookState hookKind = iota + 1
	hookEffect
	hookRef
	hookMemo
)

func (k hookKind) String() string {
	switch k {
	case hookState:
		return "useState"
	case hookEffect:
		return "useEffect"
	case hookRef:
		return "useRef"
	default:
		return "useMemo"
	}
}

// slot is the persistent state behind one hook call site.
type slot struct {
	kind    hookKind
	value   goja.Value
	setter  goja.Value
	deps    []goja.Value
	cleanup goja.Callable
}

type pendingEffect struct {
	slot *slot
	fn   goja.Callable
}

// hooks holds the slots of the mounted widget, indexed by call order.
type hooks struct {
	slots     []*slot
	index     int
	gen       int
	mounted   bool
	rendering bool
	queue     []pendingEffect
}

func (h *hooks) begin() {
	h.index = 0
	h.rendering = true
	h.queue = h.queue[:0]
}

// end checks the render used as many hooks as the previous one.
func (h *hooks) end() string {
	h.rendering = false
	if h.mounted && h.index != len(h.slots) {
		return "Rendered fewer hooks than during the previous render; hooks must not be called conditionally"
	}
	h.mounted = true
	return ""
}

// next returns the slot for the current call site and whether it is new.
func (h *hooks) next(kind hookKind) (*slot, bool, string) {
	if !h.rendering {
		return nil, false, kind.String() + " can only be called while the widget renders"
	}
	if h.index < len(h.slots) {
		s := h.slots[h.index]
		h.index++
		if s.kind != kind {
			return nil, false, "Hooks were called in a different order than during the previous render (expected " +
				s.kind.String() + ", got " + kind.String() + ")"
		}
		return s, false, ""
	}
	if h.mounted {
		return nil, false, "Rendered more hooks than during the previous render; hooks must not be called conditionally"
	}
	s := &slot{kind: kind}
	h.slots = append(h.slots, s)
	h.index++
	return s, true, ""
}

// reset drops every slot and returns the cleanups that must run.
func (h *hooks) reset() []goja.Callable {
	var cleanups []goja.Callable
	for _, s := range h.slots {
		if s.cleanup != nil {
			cleanups = append(cleanups, s.cleanup)
		}
	}
	h.gen++
	h.slots = nil
	h.index = 0
	h.mounted = false
	h.rendering = false
	h.queue = nil
	return cleanups
}

func sameDeps(prev, next []goja.Value) bool {
	if prev == nil || next == nil || len(prev) != len(next) {
		return false
	}
	for n := range prev {
		if !prev[n].SameAs(next[n]) {
			return false
		}
	}
	return true
}

// hookError throws an Error into the calling widget code.
func (i *Instance) hookError(msg string) {
	panic(i.newError("Error", msg))
}

func (i *Instance) newError(ctor, msg string) *goja.Object {
	obj, err := i.vm.New(i.vm.Get(ctor), i.vm.ToValue(msg))
	if err != nil {
		return i.vm.NewGoError(err)
	}
	return obj
}

// deps reads a dependency array; nil means "no array given".
func (i *Instance) deps(v goja.Value) []goja.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj := v.ToObject(i.vm)
	n := int(obj.Get("length").ToInteger())
	out := make([]goja.Value, n)
	for k := 0; k < n; k++ {
		out[k] = obj.Get(strconv.Itoa(k))
	}
	return out
}

func (i *Instance) useState(call goja.FunctionCall) goja.Value {
	s, fresh, msg := i.hooks.next(hookState)
	if msg != "" {
		i.hookError(msg)
	}
	if fresh {
		initial := call.Argument(0)
		if fn, ok := goja.AssertFunction(initial); ok {
			v, err := i.call(fn, goja.Undefined())
			if err != nil {
				i.rethrow(err)
			}
			initial = v
		}
		s.value = initial
		s.setter = i.vm.ToValue(i.makeSetter(s, i.hooks.gen))
	}
	return i.vm.NewArray(s.value, s.setter)
}

func (i *Instance) makeSetter(s *slot, gen int) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if gen != i.hooks.gen || i.closed.Load() {
			return goja.Undefined()
		}
		next := call.Argument(0)
		if fn, ok := goja.AssertFunction(next); ok {
			v, err := i.call(fn, goja.Undefined(), s.value)
			if err != nil {
				i.rethrow(err)
			}
			next = v
		}
		if next.SameAs(s.value) {
			return goja.Undefined()
		}
		s.value = next
		i.scheduleRender()
		return goja.Undefined()
	}
}

func (i *Instance) useEffect(call goja.FunctionCall) goja.Value {
	s, fresh, msg := i.hooks.next(hookEffect)
	if msg != "" {
		i.hookError(msg)
	}
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(i.vm.NewTypeError("useEffect expects a function"))
	}
	next := i.deps(call.Argument(1))
	if fresh || next == nil || !sameDeps(s.deps, next) {
		s.deps = next
		i.hooks.queue = append(i.hooks.queue, pendingEffect{slot: s, fn: fn})
	}
	return goja.Undefined()
}

func (i *Instance) useRef(call goja.FunctionCall) goja.Value {
	s, fresh, msg := i.hooks.next(hookRef)
	if msg != "" {
		i.hookError(msg)
	}
	if fresh {
		ref := i.vm.NewObject()
		_ = ref.Set("current", call.Argument(0))
		s.value = ref
	}
	return s.value
}

func (i *Instance) useMemo(call goja.FunctionCall) goja.Value {
	s, fresh, msg := i.hooks.next(hookMemo)
	if msg != "" {
		i.hookError(msg)
	}
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(i.vm.NewTypeError("useMemo expects a function"))
	}
	next := i.deps(call.Argument(1))
	if fresh || next == nil || !sameDeps(s.deps, next) {
		v, err := i.call(fn, goja.Undefined())
		if err != nil {
			i.rethrow(err)
		}
		s.value = v
		s.deps = next
	}
	return s.value
}

func (i *Instance) useCallback(call goja.FunctionCall) goja.Value {
	s, fresh, msg := i.hooks.next(hookMemo)
	if msg != "" {
		i.hookError(msg)
	}
	next := i.deps(call.Argument(1))
	if fresh || next == nil || !sameDeps(s.deps, next) {
		s.value = call.Argument(0)
		s.deps = next
	}
	return s.value
}

// runEffects runs the effects queued by the last render, each after the
// cleanup of its previous run.
func (i *Instance) runEffects() error {
	queue := i.hooks.queue
	i.hooks.queue = nil
	gen := i.hooks.gen
	for _, e := range queue {
		if gen != i.hooks.gen {
			return nil
		}
		if e.slot.cleanup != nil {
			cleanup := e.slot.cleanup
			e.slot.cleanup = nil
			if _, err := i.call(cleanup, goja.Undefined()); err != nil {
				return err
			}
		}
		ret, err := i.call(e.fn, goja.Undefined())
		if err != nil {
			return err
		}
		if fn, ok := goja.AssertFunction(ret); ok {
			e.slot.cleanup = fn
		}
	}
	return nil
}
