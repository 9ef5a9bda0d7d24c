package view

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// BaseStylesheet is applied inside every isolation root.
const BaseStylesheet = `:host{display:block;width:100%;height:100%;overflow:auto;contain:content}` +
	`.widget-root{width:100%;height:100%;box-sizing:border-box}` +
	`.widget-error{padding:12px;font:13px/1.4 system-ui,sans-serif;color:#7f1d1d;background:#fef2f2;border:1px solid #fecaca;border-radius:6px}` +
	`.widget-error pre{white-space:pre-wrap;word-break:break-word;margin:8px 0}` +
	`.widget-error button{margin-right:8px}`

// Host mounts sanitised widget markup inside a declarative shadow root so
// stylesheets neither leak in nor out. It is encapsulation, not a security
// boundary.
type Host struct {
	policy     *bluemonday.Policy
	stylesheet string
}

// NewHost creates an isolation host with the widget sanitising policy.
func NewHost() *Host {
	return &Host{
		policy:     Policy(),
		stylesheet: BaseStylesheet,
	}
}

// Policy is the sanitiser applied to widget markup: user-generated content
// rules plus inline styles, data attributes, form controls and stroked svg.
func Policy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowStyling()
	p.AllowAttrs("style").Globally()
	p.AllowDataAttributes()

	p.AllowElements("button", "input", "select", "option", "textarea", "label", "form", "progress", "meter")
	p.AllowAttrs("type", "value", "placeholder", "checked", "disabled", "name", "for",
		"selected", "min", "max", "step", "rows", "cols", "readonly").
		OnElements("button", "input", "select", "option", "textarea", "label", "progress", "meter")

	svgElements := []string{"svg", "path", "circle", "rect", "line", "polyline", "polygon", "g", "ellipse", "text"}
	p.AllowElements(svgElements...)
	p.AllowAttrs("viewbox", "fill", "stroke", "stroke-width", "stroke-linecap", "stroke-linejoin",
		"d", "cx", "cy", "r", "rx", "ry", "x", "y", "x1", "y1", "x2", "y2", "points",
		"width", "height", "transform", "opacity", "text-anchor").
		OnElements(svgElements...)
	return p
}

// Sanitize strips scripts, inline event handlers and unknown markup.
func (h *Host) Sanitize(body string) string {
	return h.policy.Sanitize(body)
}

// Mount sanitises body and wraps it in the isolation root for widgetID.
func (h *Host) Mount(widgetID, body string) string {
	return h.Wrap(widgetID, h.Sanitize(body))
}

// Wrap places already sanitised markup in the isolation root.
func (h *Host) Wrap(widgetID, sanitized string) string {
	var sb strings.Builder
	sb.Grow(len(sanitized) + len(h.stylesheet) + 160)
	sb.WriteString(`<div class="widget-host" data-widget-id="`)
	sb.WriteString(html.EscapeString(widgetID))
	sb.WriteString(`"><template shadowrootmode="open"><style>`)
	sb.WriteString(h.stylesheet)
	sb.WriteString(`</style><div class="widget-root">`)
	sb.WriteString(sanitized)
	sb.WriteString(`</div></template></div>`)
	return sb.String()
}
