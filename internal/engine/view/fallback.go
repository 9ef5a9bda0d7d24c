package view

// Action names carried by fallback buttons.
const (
	ActionReport     = "report-error"
	ActionReportCode = "report-error-with-code"
)

// CrashFallback is the view shown when a widget fails at runtime or trips
// the render guard. It shows the raw message and the two repair actions but
// never the widget source.
func CrashFallback(message string) *Node {
	return fallback("Widget Error", "This widget stopped working.", message)
}

// CompileFallback is the view shown when the widget source does not parse.
func CompileFallback(message string) *Node {
	return fallback("Compilation Error", "The widget code could not be compiled.", message)
}

func fallback(title, summary, message string) *Node {
	root := NewElement("div")
	root.SetAttribute("class", "widget-error")
	root.SetAttribute("role", "alert")

	h := NewElement("h4")
	h.AddChild(NewText(title))
	root.AddChild(h)

	p := NewElement("p")
	p.AddChild(NewText(summary))
	root.AddChild(p)

	pre := NewElement("pre")
	pre.SetAttribute("class", "widget-error-message")
	pre.AddChild(NewText(message))
	root.AddChild(pre)

	actions := NewElement("div")
	actions.SetAttribute("class", "widget-error-actions")
	actions.AddChild(actionButton(ActionReport, "Report error"))
	actions.AddChild(actionButton(ActionReportCode, "Send code + error"))
	root.AddChild(actions)
	return root
}

func actionButton(action, label string) *Node {
	b := NewElement("button")
	b.SetAttribute("type", "button")
	b.SetAttribute("data-action", action)
	b.AddChild(NewText(label))
	return b
}

// MinimalFallback is used when building the regular fallback fails.
const MinimalFallback = `<div class="widget-error" role="alert">Widget Error</div>`
