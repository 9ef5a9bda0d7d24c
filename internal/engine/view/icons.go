package view

import (
	"sort"
	"strconv"
)

// icon path data on a 24x24 viewBox, stroked.
var iconPaths = map[string][]string{
	"activity":       {"M22 12h-4l-3 9L9 3l-3 9H2"},
	"alert-circle":   {"M12 22a10 10 0 1 0 0-20 10 10 0 0 0 0 20z", "M12 8v4", "M12 16h.01"},
	"arrow-down":     {"M12 5v14", "M19 12l-7 7-7-7"},
	"arrow-up":       {"M12 19V5", "M5 12l7-7 7 7"},
	"bell":           {"M18 8a6 6 0 0 0-12 0c0 7-3 9-3 9h18s-3-2-3-9", "M13.73 21a2 2 0 0 1-3.46 0"},
	"calendar":       {"M3 4h18v18H3z", "M16 2v4", "M8 2v4", "M3 10h18"},
	"check":          {"M20 6L9 17l-5-5"},
	"clock":          {"M12 22a10 10 0 1 0 0-20 10 10 0 0 0 0 20z", "M12 6v6l4 2"},
	"cloud":          {"M18 10h-1.26A8 8 0 1 0 9 20h9a5 5 0 0 0 0-10z"},
	"cloud-rain":     {"M16 13v8", "M8 13v8", "M12 15v8", "M20 16.58A5 5 0 0 0 18 7h-1.26A8 8 0 1 0 4 15.25"},
	"download":       {"M21 15v4a2 2 0 0 1-2 2H5a2 2 0 0 1-2-2v-4", "M7 10l5 5 5-5", "M12 15V3"},
	"external-link":  {"M18 13v6a2 2 0 0 1-2 2H5a2 2 0 0 1-2-2V8a2 2 0 0 1 2-2h6", "M15 3h6v6", "M10 14L21 3"},
	"heart":          {"M20.84 4.61a5.5 5.5 0 0 0-7.78 0L12 5.67l-1.06-1.06a5.5 5.5 0 0 0-7.78 7.78L12 21.23l8.84-8.84a5.5 5.5 0 0 0 0-7.78z"},
	"home":           {"M3 9l9-7 9 7v11a2 2 0 0 1-2 2H5a2 2 0 0 1-2-2z", "M9 22V12h6v10"},
	"info":           {"M12 22a10 10 0 1 0 0-20 10 10 0 0 0 0 20z", "M12 16v-4", "M12 8h.01"},
	"minus":          {"M5 12h14"},
	"moon":           {"M21 12.79A9 9 0 1 1 11.21 3 7 7 0 0 0 21 12.79z"},
	"plus":           {"M12 5v14", "M5 12h14"},
	"refresh-cw":     {"M23 4v6h-6", "M1 20v-6h6", "M3.51 9a9 9 0 0 1 14.85-3.36L23 10M1 14l4.64 4.36A9 9 0 0 0 20.49 15"},
	"search":         {"M11 19a8 8 0 1 0 0-16 8 8 0 0 0 0 16z", "M21 21l-4.35-4.35"},
	"settings":       {"M12 15a3 3 0 1 0 0-6 3 3 0 0 0 0 6z", "M19.4 15a1.65 1.65 0 0 0 .33 1.82l.06.06a2 2 0 1 1-2.83 2.83l-.06-.06a1.65 1.65 0 0 0-2.82 1.17V21a2 2 0 1 1-4 0v-.09a1.65 1.65 0 0 0-2.82-1.17l-.06.06a2 2 0 1 1-2.83-2.83l.06-.06A1.65 1.65 0 0 0 3 13.08H3a2 2 0 1 1 0-4h.09a1.65 1.65 0 0 0 1.17-2.82l-.06-.06a2 2 0 1 1 2.83-2.83l.06.06A1.65 1.65 0 0 0 9 3.09V3a2 2 0 1 1 4 0v.09a1.65 1.65 0 0 0 2.82 1.17l.06-.06a2 2 0 1 1 2.83 2.83l-.06.06A1.65 1.65 0 0 0 21 9.08V9a2 2 0 1 1 0 4h-.09a1.65 1.65 0 0 0-1.51 1z"},
	"star":           {"M12 2l3.09 6.26L22 9.27l-5 4.87 1.18 6.88L12 17.77l-6.18 3.25L7 14.14 2 9.27l6.91-1.01z"},
	"sun":            {"M12 17a5 5 0 1 0 0-10 5 5 0 0 0 0 10z", "M12 1v2", "M12 21v2", "M4.22 4.22l1.42 1.42", "M18.36 18.36l1.42 1.42", "M1 12h2", "M21 12h2", "M4.22 19.78l1.42-1.42", "M18.36 5.64l1.42-1.42"},
	"trash":          {"M3 6h18", "M19 6v14a2 2 0 0 1-2 2H7a2 2 0 0 1-2-2V6", "M8 6V4a2 2 0 0 1 2-2h4a2 2 0 0 1 2 2v2"},
	"trending-down":  {"M23 18l-9.5-9.5-5 5L1 6", "M17 18h6v-6"},
	"trending-up":    {"M23 6l-9.5 9.5-5-5L1 18", "M17 6h6v6"},
	"wifi":           {"M5 12.55a11 11 0 0 1 14.08 0", "M1.42 9a16 16 0 0 1 21.16 0", "M8.53 16.11a6 6 0 0 1 6.95 0", "M12 20h.01"},
	"x":              {"M18 6L6 18", "M6 6l12 12"},
	"zap":            {"M13 2L3 14h9l-1 8 10-12h-9l1-8z"},
}

// IconOptions sizes and colours an icon.
type IconOptions struct {
	Size        float64
	Color       string
	StrokeWidth float64
	Class       string
}

// IconNames lists the icon table in a stable order.
func IconNames() []string {
	names := make([]string, 0, len(iconPaths))
	for name := range iconPaths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasIcon reports whether name is in the icon table.
func HasIcon(name string) bool {
	_, ok := iconPaths[name]
	return ok
}

// Icon builds the svg node for a named icon. Unknown names render an empty
// placeholder of the same size.
func Icon(name string, opts IconOptions) *Node {
	if opts.Size <= 0 {
		opts.Size = 24
	}
	if opts.Color == "" {
		opts.Color = "currentColor"
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = 2
	}

	size := strconv.FormatFloat(opts.Size, 'f', -1, 64)
	svg := NewElement("svg")
	svg.SetAttribute("viewbox", "0 0 24 24")
	svg.SetAttribute("width", size)
	svg.SetAttribute("height", size)
	svg.SetAttribute("fill", "none")
	svg.SetAttribute("stroke", opts.Color)
	svg.SetAttribute("stroke-width", strconv.FormatFloat(opts.StrokeWidth, 'f', -1, 64))
	svg.SetAttribute("stroke-linecap", "round")
	svg.SetAttribute("stroke-linejoin", "round")
	svg.SetAttribute("data-icon", name)
	class := "widget-icon"
	if opts.Class != "" {
		class += " " + opts.Class
	}
	svg.SetAttribute("class", class)

	for _, d := range iconPaths[name] {
		path := NewElement("path")
		path.SetAttribute("d", d)
		svg.AddChild(path)
	}
	return svg
}
