package sandbox

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

// propsObject builds the props argument: dimensions plus the persisted
// config slot and its setter. customData keeps its identity until replaced.
func (i *Instance) propsObject() goja.Value {
	obj := i.vm.NewObject()
	_ = obj.Set("width", i.props.Width)
	_ = obj.Set("height", i.props.Height)
	_ = obj.Set("customData", i.customDataValue())
	_ = obj.Set("setCustomData", i.setConfig)
	return obj
}

func (i *Instance) customDataValue() goja.Value {
	if i.customJS != nil {
		return i.customJS
	}
	data := i.props.CustomData
	if data == nil {
		data = map[string]any{}
	}
	raw, err := sonic.MarshalString(data)
	if err != nil {
		i.logger.Sugar().Warnw("customData is not JSON-serialisable, using {}", "error", err)
		raw = "{}"
	}
	v, err := i.jsonParse(goja.Undefined(), i.vm.ToValue(raw))
	if err != nil {
		v = i.vm.NewObject()
	}
	i.customJS = v
	return v
}

// jsSetCustomData replaces the persisted config with next. The value goes
// through the VM's JSON.stringify, so cyclic or non-JSON values throw inside
// the calling widget code.
func (i *Instance) jsSetCustomData(call goja.FunctionCall) goja.Value {
	next := call.Argument(0)
	s, err := i.jsonString(goja.Undefined(), next)
	if err != nil {
		i.rethrow(err)
	}
	if goja.IsUndefined(s) {
		panic(i.vm.NewTypeError("setCustomData expects a JSON object"))
	}

	var decoded any
	if err := sonic.UnmarshalString(s.String(), &decoded); err != nil {
		panic(i.vm.NewTypeError(fmt.Sprintf("setCustomData: %v", err)))
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		panic(i.vm.NewTypeError(fmt.Sprintf("setCustomData expects a JSON object, got %T", decoded)))
	}

	i.props.CustomData = m
	i.customJS = nil
	if i.cb.OnSetCustomData != nil {
		i.cb.OnSetCustomData(cloneMap(m))
	}
	i.scheduleRender()
	return goja.Undefined()
}
