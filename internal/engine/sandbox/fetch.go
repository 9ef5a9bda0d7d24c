package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/GriffinCanCode/Dashboard/backend/internal/bridge"
	"github.com/dop251/goja"
)

// abortState backs one proxyFetch.controller().
type abortState struct {
	aborted bool
	cancels map[int64]context.CancelFunc
}

func (i *Instance) proxyFetchValue(vm *goja.Runtime) (goja.Value, error) {
	fn, ok := vm.ToValue(i.proxyFetch).(*goja.Object)
	if !ok {
		return nil, errors.New("proxyFetch is not an object")
	}
	if err := fn.Set("controller", i.newController); err != nil {
		return nil, err
	}
	return fn, nil
}

// newController returns {signal, abort()} for cancelling proxyFetch calls.
func (i *Instance) newController(goja.FunctionCall) goja.Value {
	state := &abortState{cancels: make(map[int64]context.CancelFunc)}

	signal := i.vm.NewObject()
	getter := i.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return i.vm.ToValue(state.aborted)
	})
	_ = signal.DefineAccessorProperty("aborted", getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	i.signals[signal] = state

	ctrl := i.vm.NewObject()
	_ = ctrl.Set("signal", signal)
	_ = ctrl.Set("abort", func(goja.FunctionCall) goja.Value {
		if !state.aborted {
			state.aborted = true
			for _, cancel := range state.cancels {
				cancel()
			}
		}
		return goja.Undefined()
	})
	return ctrl
}

// proxyFetch is the widget's only network primitive. It posts the request
// to the bridge and resolves with a Response-like object; it rejects only
// when the bridge itself fails or the request is aborted.
func (i *Instance) proxyFetch(call goja.FunctionCall) goja.Value {
	promise, resolve, reject := i.vm.NewPromise()
	result := i.vm.ToValue(promise)

	req, signal, err := i.fetchRequest(call)
	if err != nil {
		reject(i.vm.NewTypeError(err.Error()))
		return result
	}
	if i.fetcher == nil {
		reject(i.newError("TypeError", "Failed to fetch: "+bridge.ErrUnavailable.Error()))
		return result
	}
	if signal != nil && signal.aborted {
		reject(i.abortError())
		return result
	}

	ctx, cancel := context.WithCancel(bridge.WithWidgetID(i.ctx, i.id))
	i.inflight++
	key := i.inflight
	if signal != nil {
		signal.cancels[key] = cancel
	}

	go func() {
		resp, err := i.fetcher.Fetch(ctx, req)
		aborted := ctx.Err() != nil
		cancel()
		i.loop.RunOnLoop(func(*goja.Runtime) {
			if signal != nil {
				delete(signal.cancels, key)
			}
			i.step(func() error {
				defer i.watch.arm()()
				switch {
				case aborted && signal != nil && signal.aborted:
					reject(i.abortError())
				case err != nil:
					reject(i.newError("TypeError", "Failed to fetch: "+err.Error()))
				default:
					resolve(i.responseObject(resp))
				}
				return nil
			})
		})
	}()
	return result
}

func (i *Instance) fetchRequest(call goja.FunctionCall) (bridge.Request, *abortState, error) {
	target := call.Argument(0)
	if goja.IsUndefined(target) || goja.IsNull(target) {
		return bridge.Request{}, nil, errors.New("proxyFetch requires a URL")
	}
	req := bridge.Request{URL: target.String(), Method: "GET"}

	opts := call.Argument(1)
	if goja.IsUndefined(opts) || goja.IsNull(opts) {
		return req, nil, nil
	}
	obj := opts.ToObject(i.vm)

	if m := obj.Get("method"); m != nil && !goja.IsUndefined(m) {
		req.Method = strings.ToUpper(m.String())
	}
	if h := obj.Get("headers"); h != nil && !goja.IsUndefined(h) && !goja.IsNull(h) {
		headers := h.ToObject(i.vm)
		req.Headers = make(map[string]string, len(headers.Keys()))
		for _, k := range headers.Keys() {
			req.Headers[k] = headers.Get(k).String()
		}
	}
	if b := obj.Get("body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
		var body string
		if _, isObj := b.(*goja.Object); isObj {
			s, err := i.jsonString(goja.Undefined(), b)
			if err != nil {
				return req, nil, fmt.Errorf("proxyFetch body: %v", err)
			}
			body = s.String()
			if !hasHeader(req.Headers, "content-type") {
				if req.Headers == nil {
					req.Headers = map[string]string{}
				}
				req.Headers["Content-Type"] = "application/json"
			}
		} else {
			body = b.String()
		}
		req.Body = &body
	}

	var signal *abortState
	if s := obj.Get("signal"); s != nil {
		if so, ok := s.(*goja.Object); ok {
			signal = i.signals[so]
		}
	}
	return req, signal, nil
}

func hasHeader(h map[string]string, name string) bool {
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func (i *Instance) abortError() *goja.Object {
	e := i.newError("Error", "The operation was aborted.")
	_ = e.Set("name", "AbortError")
	return e
}

// responseObject exposes a bridge response the way widget code expects a
// fetch Response to look.
func (i *Instance) responseObject(resp *bridge.Response) goja.Value {
	vm := i.vm
	obj := vm.NewObject()
	_ = obj.Set("ok", resp.OK)
	_ = obj.Set("status", resp.Status)
	_ = obj.Set("statusText", resp.StatusText)
	_ = obj.Set("url", resp.URL)
	_ = obj.Set("redirected", false)
	_ = obj.Set("type", "basic")

	headers := vm.NewObject()
	_ = headers.Set("get", func(call goja.FunctionCall) goja.Value {
		if v, ok := resp.Header(call.Argument(0).String()); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = headers.Set("has", func(call goja.FunctionCall) goja.Value {
		_, ok := resp.Header(call.Argument(0).String())
		return vm.ToValue(ok)
	})
	_ = headers.Set("forEach", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("headers.forEach expects a function"))
		}
		for _, k := range sortedKeys(resp.Headers) {
			if _, err := fn(goja.Undefined(), vm.ToValue(resp.Headers[k]), vm.ToValue(k)); err != nil {
				i.rethrow(err)
			}
		}
		return goja.Undefined()
	})
	_ = headers.Set("entries", func(goja.FunctionCall) goja.Value {
		pairs := make([]interface{}, 0, len(resp.Headers))
		for _, k := range sortedKeys(resp.Headers) {
			pairs = append(pairs, vm.NewArray(k, resp.Headers[k]))
		}
		return vm.NewArray(pairs...)
	})
	_ = obj.Set("headers", headers)

	_ = obj.Set("text", func(goja.FunctionCall) goja.Value {
		p, res, _ := vm.NewPromise()
		res(resp.BodyText)
		return vm.ToValue(p)
	})
	_ = obj.Set("json", func(goja.FunctionCall) goja.Value {
		p, res, rej := vm.NewPromise()
		v, err := i.jsonParse(goja.Undefined(), vm.ToValue(resp.BodyText))
		if err != nil {
			var exc *goja.Exception
			if errors.As(err, &exc) {
				rej(exc.Value())
			} else {
				rej(vm.NewGoError(err))
			}
		} else {
			res(v)
		}
		return vm.ToValue(p)
	})
	return obj
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
