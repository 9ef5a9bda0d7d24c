package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/sandbox"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/view"
	"github.com/GriffinCanCode/Dashboard/backend/internal/shared/id"
	"go.uber.org/zap"
)

// Metrics is what the manager reports beyond the per-instance observer.
type Metrics interface {
	sandbox.Observer
	ObserveReport(withCode bool)
	ObserveConfigWrite()
	SetWidgetsActive(count int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCompile(bool)         {}
func (nopMetrics) ObserveRender(time.Duration) {}
func (nopMetrics) ObserveCrash(string)         {}
func (nopMetrics) ObserveReport(bool)          {}
func (nopMetrics) ObserveConfigWrite()         {}
func (nopMetrics) SetWidgetsActive(int)        {}

// Manager is the hosting widget: it owns one sandbox instance per record,
// persists config writes and routes crash reports to the hub.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*sandbox.Instance // Protected by mu

	// writeMu serialises read-modify-write cycles on the store. It is never
	// held while calling into an instance.
	writeMu sync.Mutex

	store   Store
	hub     *Hub
	cfg     sandbox.Config
	fetcher sandbox.Fetcher
	host    *view.Host
	metrics Metrics
	logger  *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithFetcher sets the bridge used by proxyFetch.
func WithFetcher(f sandbox.Fetcher) Option {
	return func(m *Manager) { m.fetcher = f }
}

// WithMetrics adds metrics tracking to the manager.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHost shares one isolation host across instances.
func WithHost(h *view.Host) Option {
	return func(m *Manager) { m.host = h }
}

// NewManager creates a manager over store, publishing reports to hub.
func NewManager(store Store, hub *Hub, cfg sandbox.Config, opts ...Option) *Manager {
	m := &Manager{
		instances: make(map[string]*sandbox.Instance),
		store:     store,
		hub:       hub,
		cfg:       cfg,
		metrics:   nopMetrics{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.host == nil {
		m.host = view.NewHost()
	}
	return m
}

// Restore starts an instance for every stored record that has none yet.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore widgets: %w", err)
	}

	started := 0
	for _, rec := range records {
		if _, ok := m.instance(rec.ID); ok {
			continue
		}
		if _, err := m.start(rec); err != nil {
			m.logger.Error("failed to restore widget", zap.String("widget_id", rec.ID), zap.Error(err))
			continue
		}
		started++
	}
	m.logger.Info("widgets restored", zap.Int("count", started))
	return started, nil
}

// Create persists rec and starts its instance.
func (m *Manager) Create(ctx context.Context, rec Record) (*State, error) {
	if rec.ID == "" {
		rec.ID = id.NewWidgetID().String()
	} else if _, ok := m.instance(rec.ID); ok {
		return nil, fmt.Errorf("%w: id %s already exists", ErrInvalid, rec.ID)
	}
	rec.applyDefaults()

	if err := m.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("create widget: %w", err)
	}
	inst, err := m.start(rec)
	if err != nil {
		_ = m.store.Delete(ctx, rec.ID)
		return nil, err
	}
	return m.state(ctx, rec.ID, inst)
}

func (m *Manager) start(rec Record) (*sandbox.Instance, error) {
	widgetID := rec.ID
	inst, err := sandbox.New(m.cfg, rec.props(),
		sandbox.WithID(widgetID),
		sandbox.WithLogger(m.logger),
		sandbox.WithFetcher(m.fetcher),
		sandbox.WithObserver(m.metrics),
		sandbox.WithHost(m.host),
		sandbox.WithCallbacks(sandbox.Callbacks{
			OnSetCustomData: func(next map[string]any) {
				m.persistCustomData(widgetID, next)
			},
			OnReportError: func(message, code string) {
				m.publishReport(widgetID, message, code)
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("start widget %s: %w", widgetID, err)
	}

	m.mu.Lock()
	m.instances[widgetID] = inst
	count := len(m.instances)
	m.mu.Unlock()
	m.metrics.SetWidgetsActive(count)
	return inst, nil
}

// persistCustomData runs on the instance loop.
func (m *Manager) persistCustomData(widgetID string, next map[string]any) {
	err := m.modify(context.Background(), widgetID, func(r *Record) {
		r.CustomData = next
	})
	if err != nil {
		m.logger.Error("failed to persist custom data", zap.String("widget_id", widgetID), zap.Error(err))
		return
	}
	m.metrics.ObserveConfigWrite()
}

// publishReport runs on the instance loop.
func (m *Manager) publishReport(widgetID, message, code string) {
	report := Report{
		ID:        id.NewReportID().String(),
		WidgetID:  widgetID,
		Message:   message,
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}
	if inst, ok := m.instance(widgetID); ok {
		report.Kind = inst.Crash().Kind.String()
	}
	if rec, err := m.store.Get(context.Background(), widgetID); err == nil {
		report.WidgetName = rec.Name
	}

	m.hub.Publish(report)
	m.metrics.ObserveReport(code != "")
	m.logger.Info("widget error reported",
		zap.String("widget_id", widgetID),
		zap.String("report_id", report.ID),
		zap.Bool("with_code", code != ""))
}

func (m *Manager) modify(ctx context.Context, widgetID string, fn func(*Record)) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	rec, err := m.store.Get(ctx, widgetID)
	if err != nil {
		return err
	}
	fn(rec)
	return m.store.Put(ctx, *rec)
}

func (m *Manager) instance(widgetID string) (*sandbox.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[widgetID]
	return inst, ok
}

func (m *Manager) mustInstance(widgetID string) (*sandbox.Instance, error) {
	inst, ok := m.instance(widgetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, widgetID)
	}
	return inst, nil
}

func (m *Manager) state(ctx context.Context, widgetID string, inst *sandbox.Instance) (*State, error) {
	rec, err := m.store.Get(ctx, widgetID)
	if err != nil {
		return nil, err
	}
	return &State{Record: *rec, View: inst.View(), Compiles: inst.Compiles()}, nil
}

// Get returns the record and live view.
func (m *Manager) Get(ctx context.Context, widgetID string) (*State, error) {
	inst, err := m.mustInstance(widgetID)
	if err != nil {
		return nil, err
	}
	return m.state(ctx, widgetID, inst)
}

// List returns every running widget, oldest first.
func (m *Manager) List(ctx context.Context) ([]State, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]State, 0, len(records))
	for _, rec := range records {
		inst, ok := m.instance(rec.ID)
		if !ok {
			continue
		}
		out = append(out, State{Record: rec, View: inst.View(), Compiles: inst.Compiles()})
	}
	return out, nil
}

// Update persists p and applies the fields it sets to the instance. Both
// happen in one instance job, so a concurrent setCustomData from widget
// code lands either wholly before or wholly after it.
func (m *Manager) Update(ctx context.Context, widgetID string, p Patch) (*State, error) {
	inst, err := m.mustInstance(widgetID)
	if err != nil {
		return nil, err
	}
	if p.Empty() {
		return m.state(ctx, widgetID, inst)
	}

	persist := func() error {
		if err := m.modify(ctx, widgetID, func(r *Record) { p.apply(r) }); err != nil {
			return fmt.Errorf("persist widget %s: %w", widgetID, err)
		}
		return nil
	}
	change := p.change()
	if change.Empty() {
		if err := persist(); err != nil {
			return nil, err
		}
		return m.state(ctx, widgetID, inst)
	}
	if _, err := inst.Apply(ctx, change, persist); err != nil {
		return nil, err
	}
	return m.state(ctx, widgetID, inst)
}

// Resize changes dimensions without recompiling.
func (m *Manager) Resize(ctx context.Context, widgetID string, width, height float64) (*State, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrInvalid)
	}
	inst, err := m.mustInstance(widgetID)
	if err != nil {
		return nil, err
	}
	if _, err := inst.Resize(ctx, width, height); err != nil {
		return nil, err
	}
	if err := m.modify(ctx, widgetID, func(r *Record) { r.Width, r.Height = width, height }); err != nil {
		return nil, err
	}
	return m.state(ctx, widgetID, inst)
}

// Render re-renders and returns the view.
func (m *Manager) Render(ctx context.Context, widgetID string) (sandbox.View, error) {
	inst, err := m.mustInstance(widgetID)
	if err != nil {
		return sandbox.View{}, err
	}
	return inst.Render(ctx)
}

// View returns the last committed view after queued renders settle.
func (m *Manager) View(ctx context.Context, widgetID string) (sandbox.View, error) {
	inst, err := m.mustInstance(widgetID)
	if err != nil {
		return sandbox.View{}, err
	}
	return inst.Flush(ctx)
}

// Dispatch invokes an event handler registered by the last render.
func (m *Manager) Dispatch(ctx context.Context, widgetID, handlerID string, value any) (sandbox.View, error) {
	inst, err := m.mustInstance(widgetID)
	if err != nil {
		return sandbox.View{}, err
	}
	return inst.Dispatch(ctx, handlerID, value)
}

// Report sends the widget's crash to the repair loop.
func (m *Manager) Report(ctx context.Context, widgetID string, withCode bool) error {
	inst, err := m.mustInstance(widgetID)
	if err != nil {
		return err
	}
	return inst.Report(ctx, withCode)
}

// Reports returns recent repair reports.
func (m *Manager) Reports(limit int) []Report {
	return m.hub.Recent(limit)
}

// Hub returns the report hub.
func (m *Manager) Hub() *Hub {
	return m.hub
}

// FindBySource returns the record seeded from source.
func (m *Manager) FindBySource(ctx context.Context, source string) (*Record, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Source == source {
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

// Upsert creates rec or, when a widget with the same Source exists,
// replaces its name, code and size. Persisted customData is kept: the
// widget owns it once it runs.
func (m *Manager) Upsert(ctx context.Context, rec Record) (*State, bool, error) {
	if rec.Source == "" {
		st, err := m.Create(ctx, rec)
		return st, true, err
	}

	existing, err := m.FindBySource(ctx, rec.Source)
	if errors.Is(err, ErrNotFound) {
		st, err := m.Create(ctx, rec)
		return st, true, err
	}
	if err != nil {
		return nil, false, err
	}

	rec.applyDefaults()
	patch := Patch{Name: &rec.Name, Code: &rec.Code, Width: &rec.Width, Height: &rec.Height}
	if _, ok := m.instance(existing.ID); !ok {
		patch.apply(existing)
		if err := m.store.Put(ctx, *existing); err != nil {
			return nil, false, err
		}
		if _, err := m.start(*existing); err != nil {
			return nil, false, err
		}
		st, err := m.Get(ctx, existing.ID)
		return st, false, err
	}
	st, err := m.Update(ctx, existing.ID, patch)
	return st, false, err
}

// Delete stops and removes a widget.
func (m *Manager) Delete(ctx context.Context, widgetID string) error {
	m.mu.Lock()
	inst, ok := m.instances[widgetID]
	delete(m.instances, widgetID)
	count := len(m.instances)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, widgetID)
	}
	m.metrics.SetWidgetsActive(count)
	_ = inst.Close()
	return m.store.Delete(ctx, widgetID)
}

// Count returns the number of running instances.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}

// Close stops every instance. Records stay in the store.
func (m *Manager) Close() error {
	m.mu.Lock()
	instances := m.instances
	m.instances = make(map[string]*sandbox.Instance)
	m.mu.Unlock()

	var errs []string
	for widgetID, inst := range instances {
		if err := inst.Close(); err != nil {
			errs = append(errs, widgetID+": "+err.Error())
		}
	}
	m.metrics.SetWidgetsActive(0)
	if len(errs) > 0 {
		return fmt.Errorf("close widgets: %s", strings.Join(errs, "; "))
	}
	return nil
}
