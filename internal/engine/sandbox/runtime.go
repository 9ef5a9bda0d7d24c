package sandbox

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/boundary"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/guard"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/loader"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/view"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

// Instance is one live widget. All VM state is owned by the instance's
// event loop; exported methods post jobs to it and wait.
type Instance struct {
	id      string
	cfg     Config
	logger  *zap.Logger
	fetcher Fetcher
	cb      Callbacks
	obs     Observer
	host    *view.Host
	clock   func() time.Time

	loop     *eventloop.EventLoop
	loader   *loader.Loader
	guard    *guard.Guard
	boundary *boundary.Boundary
	watch    *watchdog

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// Owned by the loop goroutine.
	vm         *goja.Runtime
	props      Props
	fn         goja.Callable
	fnSource   string
	hooks      *hooks
	pending    bool
	rc         *renderContext
	handlers   map[string]handlerRef
	customJS   goja.Value
	setConfig  goja.Value
	caps       []goja.Value
	jsonParse  goja.Callable
	jsonString goja.Callable
	timers     map[int64]timerRef
	nextTimer  int64
	rejections map[*goja.Promise]goja.Value
	signals    map[*goja.Object]*abortState
	inflight   int64

	mu      sync.RWMutex
	view    View
	console []LogEntry
	renders int
}

// Option configures an Instance.
type Option func(*Instance)

// WithID sets the widget id used in logs and the isolation root.
func WithID(id string) Option {
	return func(i *Instance) { i.id = id }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Instance) { i.logger = l }
}

// WithFetcher connects proxyFetch to a bridge client.
func WithFetcher(f Fetcher) Option {
	return func(i *Instance) { i.fetcher = f }
}

// WithCallbacks connects the hosting widget.
func WithCallbacks(cb Callbacks) Option {
	return func(i *Instance) { i.cb = cb }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(i *Instance) { i.obs = o }
}

// WithHost shares a style isolation host between instances.
func WithHost(h *view.Host) Option {
	return func(i *Instance) { i.host = h }
}

// WithClock replaces time.Now for the render guard and crash records.
func WithClock(now func() time.Time) Option {
	return func(i *Instance) { i.clock = now }
}

// New starts an instance and renders props once.
func New(cfg Config, props Props, opts ...Option) (*Instance, error) {
	cfg = withDefaults(cfg)
	i := &Instance{
		cfg:        cfg,
		logger:     zap.NewNop(),
		obs:        nopObserver{},
		clock:      time.Now,
		loader:     loader.New(),
		hooks:      &hooks{},
		timers:     make(map[int64]timerRef),
		rejections: make(map[*goja.Promise]goja.Value),
		signals:    make(map[*goja.Object]*abortState),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.host == nil {
		i.host = view.NewHost()
	}
	i.logger = i.logger.With(zap.String("widget_id", i.id))
	i.guard = guard.New(cfg.RenderLoopThreshold, cfg.RenderWindow, guard.WithClock(i.clock))
	i.boundary = boundary.New(boundary.WithClock(i.clock))
	i.ctx, i.cancel = context.WithCancel(context.Background())

	i.loop = eventloop.NewEventLoop(eventloop.EnableConsole(false))
	i.loop.Start()

	if err := i.runSync(context.Background(), i.setup); err != nil {
		i.cancel()
		i.loop.Stop()
		return nil, fmt.Errorf("setup widget runtime: %w", err)
	}
	if _, err := i.Update(context.Background(), props); err != nil {
		i.Close()
		return nil, err
	}
	return i, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.RenderLoopThreshold <= 0 {
		cfg.RenderLoopThreshold = def.RenderLoopThreshold
	}
	if cfg.RenderWindow <= 0 {
		cfg.RenderWindow = def.RenderWindow
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = def.ExecTimeout
	}
	if cfg.ConsoleBuffer <= 0 {
		cfg.ConsoleBuffer = def.ConsoleBuffer
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = def.SyncTimeout
	}
	return cfg
}

// setup configures globals and the capability table.
func (i *Instance) setup(vm *goja.Runtime) error {
	i.vm = vm
	i.watch = newWatchdog(vm, i.cfg.ExecTimeout)

	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, i.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}
	if err := i.setupTimers(vm); err != nil {
		return err
	}

	jsonObj := vm.Get("JSON").ToObject(vm)
	var ok bool
	if i.jsonParse, ok = goja.AssertFunction(jsonObj.Get("parse")); !ok {
		return fmt.Errorf("JSON.parse unavailable")
	}
	if i.jsonString, ok = goja.AssertFunction(jsonObj.Get("stringify")); !ok {
		return fmt.Errorf("JSON.stringify unavailable")
	}

	vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		switch op {
		case goja.PromiseRejectionReject:
			i.rejections[p] = p.Result()
		case goja.PromiseRejectionHandle:
			delete(i.rejections, p)
		}
	})

	i.setConfig = vm.ToValue(i.jsSetCustomData)
	caps, err := i.capabilities(vm)
	if err != nil {
		return err
	}
	i.caps = caps
	return nil
}

// makeConsoleFunc creates a console function
func (i *Instance) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for n, arg := range call.Arguments {
			parts[n] = i.describe(arg)
		}
		msg := strings.Join(parts, " ")

		i.mu.Lock()
		i.console = append(i.console, LogEntry{Level: level, Message: msg, Time: i.clock()})
		if over := len(i.console) - i.cfg.ConsoleBuffer; over > 0 {
			i.console = append([]LogEntry(nil), i.console[over:]...)
		}
		i.mu.Unlock()

		switch level {
		case "error":
			i.logger.Error(msg, zap.String("source", "console"))
		case "warn":
			i.logger.Warn(msg, zap.String("source", "console"))
		default:
			i.logger.Debug(msg, zap.String("source", "console"), zap.String("level", level))
		}
		return goja.Undefined()
	}
}

// describe formats a console argument: plain objects as JSON, everything
// else by its string conversion.
func (i *Instance) describe(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(obj); !isFn && obj.ClassName() != "Error" {
			if s, err := i.jsonString(goja.Undefined(), obj); err == nil && !goja.IsUndefined(s) {
				return s.String()
			}
		}
	}
	return v.String()
}

// runSync posts fn to the loop and waits for it.
func (i *Instance) runSync(ctx context.Context, fn func(*goja.Runtime) error) error {
	if i.closed.Load() {
		return ErrClosed
	}
	errCh := make(chan error, 1)
	ok := i.loop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- fn(vm)
	})
	if !ok {
		return ErrLoopUnavailable
	}

	timer := time.NewTimer(i.cfg.SyncTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-i.ctx.Done():
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("widget %s: operation timed out after %v", i.id, i.cfg.SyncTimeout)
	}
}

// settle waits until no render is queued.
func (i *Instance) settle(ctx context.Context) error {
	limit := i.cfg.RenderLoopThreshold + 32
	for n := 0; n < limit; n++ {
		var pending bool
		if err := i.runSync(ctx, func(*goja.Runtime) error {
			pending = i.pending
			return nil
		}); err != nil {
			return err
		}
		if !pending {
			return nil
		}
	}
	return nil
}

// apply runs fn on the loop, waits for queued renders and returns the view.
func (i *Instance) apply(ctx context.Context, fn func() error) (View, error) {
	if err := i.runSync(ctx, func(*goja.Runtime) error { return fn() }); err != nil {
		return View{}, err
	}
	if err := i.settle(ctx); err != nil {
		return View{}, err
	}
	return i.View(), nil
}

// ID returns the widget id.
func (i *Instance) ID() string {
	return i.id
}

// Update replaces all props and renders.
func (i *Instance) Update(ctx context.Context, p Props) (View, error) {
	return i.apply(ctx, func() error {
		i.props.Code = p.Code
		i.setCustomData(p.CustomData)
		i.props.Width, i.props.Height = p.Width, p.Height
		i.render(false)
		return nil
	})
}

// Apply sets only the fields present in c and renders, all in one loop job.
// persist, when given, runs first on the same job; if it fails nothing is
// applied. Config writes from widget code cannot interleave with it.
func (i *Instance) Apply(ctx context.Context, c Change, persist func() error) (View, error) {
	return i.apply(ctx, func() error {
		if persist != nil {
			if err := persist(); err != nil {
				return err
			}
		}
		if c.Code != nil {
			i.props.Code = *c.Code
		}
		if c.CustomData != nil {
			i.setCustomData(c.CustomData)
		}
		if c.Width != nil {
			i.props.Width = *c.Width
		}
		if c.Height != nil {
			i.props.Height = *c.Height
		}
		i.render(false)
		return nil
	})
}

// SetCode replaces the source and renders. A new source clears a crash.
func (i *Instance) SetCode(ctx context.Context, code string) (View, error) {
	return i.apply(ctx, func() error {
		i.props.Code = code
		i.render(false)
		return nil
	})
}

// SetCustomData replaces the config value from the host side and renders.
func (i *Instance) SetCustomData(ctx context.Context, data map[string]any) (View, error) {
	return i.apply(ctx, func() error {
		i.setCustomData(data)
		i.render(false)
		return nil
	})
}

// Resize updates dimensions and renders without recompiling.
func (i *Instance) Resize(ctx context.Context, width, height float64) (View, error) {
	return i.apply(ctx, func() error {
		i.props.Width, i.props.Height = width, height
		i.render(false)
		return nil
	})
}

// Render forces a render with the current props.
func (i *Instance) Render(ctx context.Context) (View, error) {
	return i.apply(ctx, func() error {
		i.render(false)
		return nil
	})
}

// Flush waits for queued renders, timers excluded, and returns the view.
func (i *Instance) Flush(ctx context.Context) (View, error) {
	return i.apply(ctx, func() error { return nil })
}

// Report sends the crash to OnReportError, with the current source when
// withCode is set.
func (i *Instance) Report(ctx context.Context, withCode bool) error {
	return i.runSync(ctx, func(*goja.Runtime) error {
		rec := i.boundary.Record()
		if !rec.HasError {
			return ErrHealthy
		}
		code := ""
		if withCode {
			code = i.props.Code
		}
		if i.cb.OnReportError != nil {
			i.cb.OnReportError(rec.Message, code)
		}
		return nil
	})
}

// Props returns a copy of the current props.
func (i *Instance) Props(ctx context.Context) (Props, error) {
	var p Props
	err := i.runSync(ctx, func(*goja.Runtime) error {
		p = i.props
		p.CustomData = cloneMap(i.props.CustomData)
		return nil
	})
	return p, err
}

// Crash returns the boundary record.
func (i *Instance) Crash() boundary.Record {
	return i.boundary.Record()
}

// Compiles counts source compilations.
func (i *Instance) Compiles() int {
	return i.loader.Compiles()
}

// View returns the last committed view.
func (i *Instance) View() View {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v := i.view
	v.Console = append([]LogEntry(nil), i.console...)
	return v
}

// Close stops the loop and cancels outstanding bridge requests.
func (i *Instance) Close() error {
	if i.closed.Load() {
		return nil
	}
	// Unmount first so effect cleanups run while the loop is alive.
	_ = i.runSync(context.Background(), func(*goja.Runtime) error {
		i.unmount()
		return nil
	})
	if i.closed.Swap(true) {
		return nil
	}
	i.cancel()
	i.loop.Stop()
	return nil
}

func (i *Instance) setCustomData(data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	if reflect.DeepEqual(data, i.props.CustomData) {
		return
	}
	i.props.CustomData = cloneMap(data)
	i.customJS = nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
