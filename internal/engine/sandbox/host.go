package sandbox

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/loader"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/view"
	"github.com/dop251/goja"
)

// element is the opaque handle widget code holds for a built node. It has
// no exported fields, so scripts cannot reach into the tree.
type element struct {
	node *view.Node
}

var unitless = map[string]bool{
	"opacity": true, "z-index": true, "font-weight": true, "line-height": true,
	"flex": true, "flex-grow": true, "flex-shrink": true, "order": true,
	"zoom": true, "grid-row": true, "grid-column": true,
}

// capabilities builds the fixed arguments of every factory call, in
// loader.Params order minus the trailing props.
func (i *Instance) capabilities(vm *goja.Runtime) ([]goja.Value, error) {
	host := vm.NewObject()
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"el":            i.hostEl,
		"h":             i.hostEl,
		"createElement": i.hostEl,
		"text":          i.hostText,
		"fragment":      i.hostFragment,
		"icon":          i.hostIcon,
	} {
		if err := host.Set(name, fn); err != nil {
			return nil, err
		}
	}
	if err := host.Set("Fragment", view.Fragment); err != nil {
		return nil, err
	}

	icons := vm.NewObject()
	for _, name := range view.IconNames() {
		name := name
		fn := func(call goja.FunctionCall) goja.Value {
			return i.nodeValue(view.Icon(name, i.iconOptions(call.Argument(0))))
		}
		if err := icons.Set(name, fn); err != nil {
			return nil, err
		}
		if err := icons.Set(pascal(name), fn); err != nil {
			return nil, err
		}
	}

	proxyFetch, err := i.proxyFetchValue(vm)
	if err != nil {
		return nil, err
	}

	caps := []goja.Value{
		host,
		vm.ToValue(i.useState),
		vm.ToValue(i.useEffect),
		vm.ToValue(i.useRef),
		vm.ToValue(i.useMemo),
		vm.ToValue(i.useCallback),
		icons,
		proxyFetch,
	}
	if len(caps) != len(loader.Params)-1 {
		return nil, fmt.Errorf("capability table has %d entries, factory expects %d", len(caps), len(loader.Params)-1)
	}
	return caps, nil
}

func (i *Instance) nodeValue(n *view.Node) goja.Value {
	return i.vm.ToValue(&element{node: n})
}

// hostEl builds an element: el(tag, attrs, ...children). A function tag is
// called as a component with attrs plus children.
func (i *Instance) hostEl(call goja.FunctionCall) goja.Value {
	tagArg := call.Argument(0)
	children := call.Arguments
	if len(children) > 2 {
		children = children[2:]
	} else {
		children = nil
	}

	if fn, ok := goja.AssertFunction(tagArg); ok {
		return i.component(fn, call.Argument(1), children)
	}

	tag := tagArg.String()
	if tag == view.Fragment {
		return i.nodeValue(i.fragment(children))
	}
	if !view.ValidTag(tag) {
		panic(i.vm.NewTypeError(fmt.Sprintf("invalid element type %q", tag)))
	}

	node := view.NewElement(tag)
	i.applyAttrs(node, call.Argument(1))
	for _, c := range children {
		child, err := i.toNode(c)
		if err != nil {
			panic(i.vm.NewTypeError(err.Error()))
		}
		node.AddChild(child)
	}
	return i.nodeValue(node)
}

func (i *Instance) component(fn goja.Callable, attrs goja.Value, children []goja.Value) goja.Value {
	props := i.vm.NewObject()
	if !goja.IsUndefined(attrs) && !goja.IsNull(attrs) {
		src := attrs.ToObject(i.vm)
		for _, k := range src.Keys() {
			_ = props.Set(k, src.Get(k))
		}
	}
	list := make([]interface{}, len(children))
	for n, c := range children {
		list[n] = c
	}
	_ = props.Set("children", i.vm.NewArray(list...))
	out, err := i.call(fn, goja.Undefined(), props)
	if err != nil {
		i.rethrow(err)
	}
	return out
}

func (i *Instance) hostText(call goja.FunctionCall) goja.Value {
	var sb strings.Builder
	for _, arg := range call.Arguments {
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			continue
		}
		sb.WriteString(arg.String())
	}
	return i.nodeValue(view.NewText(sb.String()))
}

func (i *Instance) hostFragment(call goja.FunctionCall) goja.Value {
	return i.nodeValue(i.fragment(call.Arguments))
}

func (i *Instance) fragment(children []goja.Value) *view.Node {
	frag := view.NewFragment()
	for _, c := range children {
		child, err := i.toNode(c)
		if err != nil {
			panic(i.vm.NewTypeError(err.Error()))
		}
		frag.AddChild(child)
	}
	return frag
}

func (i *Instance) hostIcon(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	return i.nodeValue(view.Icon(name, i.iconOptions(call.Argument(1))))
}

func (i *Instance) iconOptions(v goja.Value) view.IconOptions {
	var opts view.IconOptions
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return opts
	}
	obj := v.ToObject(i.vm)
	if s := obj.Get("size"); s != nil && !goja.IsUndefined(s) {
		opts.Size = s.ToFloat()
	}
	if c := obj.Get("color"); c != nil && !goja.IsUndefined(c) {
		opts.Color = c.String()
	}
	if w := obj.Get("strokeWidth"); w != nil && !goja.IsUndefined(w) {
		opts.StrokeWidth = w.ToFloat()
	}
	if c := obj.Get("className"); c != nil && !goja.IsUndefined(c) {
		opts.Class = c.String()
	}
	return opts
}

// toNode converts a renderable value. null, undefined and booleans render
// nothing; strings and numbers become text; arrays are flattened.
func (i *Instance) toNode(v goja.Value) (*view.Node, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		switch v.Export().(type) {
		case bool:
			return nil, nil
		default:
			return view.NewText(v.String()), nil
		}
	}

	if obj.ClassName() == "Array" {
		frag := view.NewFragment()
		n := int(obj.Get("length").ToInteger())
		for k := 0; k < n; k++ {
			child, err := i.toNode(obj.Get(strconv.Itoa(k)))
			if err != nil {
				return nil, err
			}
			frag.AddChild(child)
		}
		return frag, nil
	}
	if el, ok := obj.Export().(*element); ok {
		return el.node, nil
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return nil, fmt.Errorf("functions are not valid as a widget child; call it or pass it to host.el")
	}
	return nil, fmt.Errorf("objects are not valid as a widget child (found object with keys {%s}); build nodes with host.el",
		strings.Join(obj.Keys(), ", "))
}

// applyAttrs copies an attribute object onto node. Function values under
// on* keys become bound handlers.
func (i *Instance) applyAttrs(node *view.Node, attrs goja.Value) {
	if goja.IsUndefined(attrs) || goja.IsNull(attrs) {
		return
	}
	obj := attrs.ToObject(i.vm)
	for _, key := range obj.Keys() {
		val := obj.Get(key)
		switch key {
		case "key", "ref", "children", "dangerouslySetInnerHTML":
			continue
		case "style":
			if css := i.styleText(val); css != "" {
				node.SetAttribute("style", css)
			}
			continue
		case "className":
			key = "class"
		case "htmlFor":
			key = "for"
		}

		if fn, ok := goja.AssertFunction(val); ok {
			if len(key) > 2 && strings.HasPrefix(key, "on") && unicode.IsUpper(rune(key[2])) {
				if i.rc != nil {
					event := strings.ToLower(key[2:])
					node.On(event, i.rc.register(event, fn))
				}
			}
			continue
		}
		if goja.IsUndefined(val) || goja.IsNull(val) {
			continue
		}
		if b, ok := val.Export().(bool); ok {
			if b {
				node.SetAttribute(strings.ToLower(key), "")
			}
			continue
		}
		node.SetAttribute(strings.ToLower(key), val.String())
	}
}

func (i *Instance) styleText(v goja.Value) string {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	if _, ok := v.(*goja.Object); !ok {
		return v.String()
	}
	obj := v.ToObject(i.vm)
	parts := make([]string, 0, len(obj.Keys()))
	for _, key := range obj.Keys() {
		val := obj.Get(key)
		if goja.IsUndefined(val) || goja.IsNull(val) {
			continue
		}
		prop := kebab(key)
		text := val.String()
		switch val.Export().(type) {
		case int64, float64:
			if !unitless[prop] && text != "0" && !strings.HasPrefix(prop, "--") {
				text += "px"
			}
		case bool:
			continue
		}
		parts = append(parts, prop+": "+text)
	}
	return strings.Join(parts, "; ")
}

// kebab turns fontSize into font-size; custom properties pass through.
func kebab(s string) string {
	if strings.HasPrefix(s, "--") {
		return s
	}
	var sb strings.Builder
	for n, r := range s {
		if unicode.IsUpper(r) {
			if n > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// pascal turns alert-circle into AlertCircle.
func pascal(s string) string {
	var sb strings.Builder
	for _, part := range strings.Split(s, "-") {
		if part == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(part[:1]))
		sb.WriteString(part[1:])
	}
	return sb.String()
}
