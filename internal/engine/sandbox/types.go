package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/bridge"
)

var (
	ErrClosed          = errors.New("widget instance is closed")
	ErrHealthy         = errors.New("widget instance has no error to report")
	ErrUnknownHandler  = errors.New("unknown event handler")
	ErrLoopUnavailable = errors.New("event loop not running")
)

// Config defines instance limits.
type Config struct {
	RenderLoopThreshold int           // renders allowed per window
	RenderWindow        time.Duration // guard window length
	ExecTimeout         time.Duration // watchdog per call into widget code
	ConsoleBuffer       int           // console entries kept on the view
	SyncTimeout         time.Duration // wait for a posted job to finish
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		RenderLoopThreshold: 170,
		RenderWindow:        time.Second,
		ExecTimeout:         250 * time.Millisecond,
		ConsoleBuffer:       100,
		SyncTimeout:         5 * time.Second,
	}
}

// Props are the inputs the hosting widget supplies.
type Props struct {
	Code       string
	CustomData map[string]any
	Width      float64
	Height     float64
}

// Change is a partial props update. Nil fields are left alone; CustomData
// replaces the whole object when set.
type Change struct {
	Code       *string
	CustomData map[string]any
	Width      *float64
	Height     *float64
}

// Empty reports whether c changes nothing.
func (c Change) Empty() bool {
	return c.Code == nil && c.CustomData == nil && c.Width == nil && c.Height == nil
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// View is the last committed render of an instance.
type View struct {
	WidgetID string     `json:"widget_id"`
	HTML     string     `json:"html"`
	Body     string     `json:"body"`
	Text     string     `json:"text"`
	Empty    bool       `json:"empty"`
	Crashed  bool       `json:"crashed"`
	Kind     string     `json:"kind,omitempty"`
	Error    string     `json:"error,omitempty"`
	Handlers []string   `json:"handlers,omitempty"`
	Renders  int        `json:"renders"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
	Console  []LogEntry `json:"console,omitempty"`
}

// Callbacks connect an instance to its hosting widget. Both run on the
// instance's event loop and must not call back into the instance
// synchronously.
type Callbacks struct {
	// OnSetCustomData receives every replacement config value.
	OnSetCustomData func(next map[string]any)
	// OnReportError receives the crash message, plus the source when the
	// user chose to send it.
	OnReportError func(message, code string)
}

// Fetcher performs bridge requests for proxyFetch.
type Fetcher interface {
	Fetch(ctx context.Context, req bridge.Request) (*bridge.Response, error)
}

// Observer receives instance metrics.
type Observer interface {
	ObserveCompile(ok bool)
	ObserveRender(d time.Duration)
	ObserveCrash(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveCompile(bool)         {}
func (nopObserver) ObserveRender(time.Duration) {}
func (nopObserver) ObserveCrash(string)         {}
