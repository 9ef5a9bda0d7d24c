package widget

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/sandbox"
)

var (
	ErrNotFound = errors.New("widget not found")
	ErrInvalid  = errors.New("invalid widget")
)

// Default dimensions for records that omit them.
const (
	DefaultWidth  = 320
	DefaultHeight = 240
)

// Record is a persisted widget.
type Record struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Code       string         `json:"code"`
	CustomData map[string]any `json:"custom_data"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	// Source is the manifest a seeded widget came from.
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Record) props() sandbox.Props {
	return sandbox.Props{
		Code:       r.Code,
		CustomData: r.CustomData,
		Width:      r.Width,
		Height:     r.Height,
	}
}

func (r *Record) applyDefaults() {
	if r.Width <= 0 {
		r.Width = DefaultWidth
	}
	if r.Height <= 0 {
		r.Height = DefaultHeight
	}
	if r.CustomData == nil {
		r.CustomData = map[string]any{}
	}
	if r.Name == "" {
		r.Name = "Untitled Widget"
	}
}

// Patch is a partial update. Nil fields are left alone; CustomData replaces
// the whole object when set.
type Patch struct {
	Name       *string        `json:"name,omitempty"`
	Code       *string        `json:"code,omitempty"`
	CustomData map[string]any `json:"custom_data,omitempty"`
	Width      *float64       `json:"width,omitempty"`
	Height     *float64       `json:"height,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Code == nil && p.CustomData == nil && p.Width == nil && p.Height == nil
}

func (p Patch) change() sandbox.Change {
	return sandbox.Change{
		Code:       p.Code,
		CustomData: p.CustomData,
		Width:      p.Width,
		Height:     p.Height,
	}
}

func (p Patch) apply(r *Record) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Code != nil {
		r.Code = *p.Code
	}
	if p.CustomData != nil {
		r.CustomData = p.CustomData
	}
	if p.Width != nil {
		r.Width = *p.Width
	}
	if p.Height != nil {
		r.Height = *p.Height
	}
}

// State is a record with its live view.
type State struct {
	Record
	View     sandbox.View `json:"view"`
	Compiles int          `json:"compiles"`
}

// Report is a crash sent to the repair loop.
type Report struct {
	ID         string    `json:"id"`
	WidgetID   string    `json:"widget_id"`
	WidgetName string    `json:"widget_name"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
