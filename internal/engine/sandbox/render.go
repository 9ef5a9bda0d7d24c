package sandbox

import (
	"fmt"
	"sort"

	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/boundary"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/view"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// UnhandledRejection is raised when a promise rejects with no handler
// attached by the end of the job that rejected it.
type UnhandledRejection struct {
	Message string
}

func (e *UnhandledRejection) Error() string {
	return "Uncaught (in promise) " + e.Message
}

type handlerRef struct {
	event string
	fn    goja.Callable
}

// renderContext collects handlers bound during one render.
type renderContext struct {
	handlers map[string]handlerRef
	next     int
}

func newRenderContext() *renderContext {
	return &renderContext{handlers: make(map[string]handlerRef)}
}

func (rc *renderContext) register(event string, fn goja.Callable) string {
	id := fmt.Sprintf("h%d", rc.next)
	rc.next++
	rc.handlers[id] = handlerRef{event: event, fn: fn}
	return id
}

// scheduleRender queues one render on the loop. Further calls before it runs
// are absorbed.
func (i *Instance) scheduleRender() {
	if i.pending || i.closed.Load() {
		return
	}
	i.pending = true
	i.loop.RunOnLoop(func(*goja.Runtime) {
		if i.pending {
			i.render(true)
		}
	})
}

// render runs one render cycle: boundary reset on source change, compile,
// guard tick, factory call, commit and effects. Only renders the widget
// caused itself are counted; host prop and dimension updates are not.
func (i *Instance) render(counted bool) {
	i.pending = false
	if i.closed.Load() {
		return
	}
	start := i.clock()
	code := i.props.Code

	if i.boundary.Reset(code) {
		i.logger.Info("Widget source changed, clearing crash")
	}
	if i.boundary.Crashed() {
		i.commitFallback()
		return
	}

	if err := i.boundary.Guard(func() error { return i.renderStep(code, counted) }); err != nil {
		i.crashed(err)
		return
	}
	i.checkRejections()
	i.obs.ObserveRender(i.clock().Sub(start))
}

func (i *Instance) renderStep(code string, counted bool) error {
	before := i.loader.Compiles()
	factory, err := i.loader.Load(code)
	if i.loader.Compiles() != before {
		i.obs.ObserveCompile(err == nil)
	}
	if err != nil {
		return err
	}

	if factory.Empty() {
		i.unmount()
		return i.commit(nil, nil)
	}

	if i.fn == nil || i.fnSource != code {
		i.unmount()
		fn, err := factory.Instantiate(i.vm)
		if err != nil {
			return err
		}
		i.fn, i.fnSource = fn, code
	}

	if counted {
		if err := i.guard.Tick(); err != nil {
			return err
		}
	}

	rc := newRenderContext()
	i.rc = rc
	i.hooks.begin()
	out, err := i.call(i.fn, goja.Undefined(), i.args()...)
	i.rc = nil
	if msg := i.hooks.end(); err == nil && msg != "" {
		err = fmt.Errorf("%s", msg)
	}
	if err != nil {
		return err
	}

	node, err := i.toNode(out)
	if err != nil {
		return err
	}
	if err := i.commit(node, rc.handlers); err != nil {
		return err
	}
	return i.runEffects()
}

// args builds the capability arguments for one factory call.
func (i *Instance) args() []goja.Value {
	args := make([]goja.Value, len(i.caps)+1)
	copy(args, i.caps)
	args[len(i.caps)] = i.propsObject()
	return args
}

// commit publishes a healthy render.
func (i *Instance) commit(node *view.Node, handlers map[string]handlerRef) error {
	raw, err := view.Render(node)
	if err != nil {
		return fmt.Errorf("render widget markup: %w", err)
	}
	body := i.host.Sanitize(raw)
	text := ""
	if node != nil {
		text = node.TextContent()
	}

	ids := make([]string, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	i.handlers = handlers

	i.publish(View{
		HTML:     i.host.Wrap(i.id, body),
		Body:     body,
		Text:     text,
		Empty:    node == nil,
		Handlers: ids,
	}, true)
	return nil
}

// commitFallback publishes the fallback for the current crash record.
// Building it cannot fail the host.
func (i *Instance) commitFallback() {
	rec := i.boundary.Record()
	i.handlers = nil
	body := boundary.Contain(func() string {
		node := view.CrashFallback(rec.Message)
		if rec.Kind == boundary.KindCompile {
			node = view.CompileFallback(rec.Message)
		}
		out, err := view.Render(node)
		if err != nil {
			return view.MinimalFallback
		}
		return i.host.Sanitize(out)
	}, view.MinimalFallback)

	i.publish(View{
		HTML:    i.host.Wrap(i.id, body),
		Body:    body,
		Text:    rec.Message,
		Crashed: true,
		Kind:    rec.Kind.String(),
		Error:   rec.Message,
	}, false)
}

func (i *Instance) publish(v View, rendered bool) {
	v.WidgetID = i.id
	v.Width, v.Height = i.props.Width, i.props.Height
	i.mu.Lock()
	if rendered {
		i.renders++
	}
	v.Renders = i.renders
	i.view = v
	i.mu.Unlock()
}

// crashed handles a failure already recorded by the boundary.
func (i *Instance) crashed(err error) {
	rec := i.boundary.Record()
	i.logger.Warn("Widget crashed",
		zap.String("kind", rec.Kind.String()),
		zap.String("message", rec.Message),
		zap.Error(err))
	i.obs.ObserveCrash(rec.Kind.String())
	i.unmount()
	i.commitFallback()
}

// step runs widget code outside a render (effects excluded): timers, event
// handlers and promise settlements.
func (i *Instance) step(fn func() error) {
	if i.closed.Load() || i.boundary.Crashed() {
		return
	}
	if err := i.boundary.Guard(fn); err != nil {
		i.crashed(err)
		return
	}
	i.checkRejections()
}

// checkRejections turns a promise rejected without handler into a crash.
func (i *Instance) checkRejections() {
	if len(i.rejections) == 0 {
		return
	}
	var reason goja.Value
	for p, r := range i.rejections {
		reason = r
		delete(i.rejections, p)
	}
	if i.boundary.Crashed() {
		return
	}
	err := &UnhandledRejection{Message: i.reasonMessage(reason)}
	i.boundary.Fail(err)
	i.crashed(err)
}

func (i *Instance) reasonMessage(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	return v.String()
}

// unmount runs effect cleanups, stops timers and forgets the factory.
// Cleanup failures are logged, not raised.
func (i *Instance) unmount() {
	for _, cleanup := range i.hooks.reset() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					i.logger.Warn("Effect cleanup panicked", zap.Any("panic", r))
				}
			}()
			if _, err := i.call(cleanup, goja.Undefined()); err != nil {
				i.logger.Debug("Effect cleanup failed", zap.Error(err))
			}
		}()
	}
	i.clearTimers()
	i.signals = make(map[*goja.Object]*abortState)
	i.handlers = nil
	i.fn = nil
	i.fnSource = ""
}
