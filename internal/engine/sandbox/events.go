package sandbox

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// Dispatch invokes a handler bound by the last render with an event
// carrying value. The handler runs under the watchdog and boundary.
func (i *Instance) Dispatch(ctx context.Context, handlerID string, value any) (View, error) {
	return i.apply(ctx, func() error {
		h, ok := i.handlers[handlerID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownHandler, handlerID)
		}
		event := i.eventObject(h.event, value)
		i.step(func() error {
			_, err := i.call(h.fn, goja.Undefined(), event)
			return err
		})
		return nil
	})
}

func (i *Instance) eventObject(name string, value any) goja.Value {
	vm := i.vm
	v := vm.ToValue(value)

	target := vm.NewObject()
	_ = target.Set("value", v)
	if b, ok := value.(bool); ok {
		_ = target.Set("checked", b)
	}

	event := vm.NewObject()
	_ = event.Set("type", name)
	_ = event.Set("value", v)
	_ = event.Set("target", target)
	_ = event.Set("currentTarget", target)
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = event.Set("preventDefault", noop)
	_ = event.Set("stopPropagation", noop)
	return event
}
