package view

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	tagPattern  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)
	attrPattern = regexp.MustCompile(`^[a-zA-Z_:][-a-zA-Z0-9_:.]*$`)
)

// ValidTag reports whether tag is usable as an element name.
func ValidTag(tag string) bool {
	return tagPattern.MatchString(tag)
}

// ValidAttr reports whether name is usable as an attribute name.
func ValidAttr(name string) bool {
	return attrPattern.MatchString(name)
}

// HandlerAttr is the attribute a bound event handler renders as.
func HandlerAttr(event string) string {
	return "data-on-" + strings.ToLower(event)
}

// Render serialises a node tree to HTML. A fragment root renders its
// children back to back.
func Render(n *Node) (string, error) {
	if n == nil {
		return "", nil
	}
	var buf bytes.Buffer
	for _, hn := range toHTML(n) {
		if err := html.Render(&buf, hn); err != nil {
			return "", fmt.Errorf("render <%s>: %w", n.Tag, err)
		}
	}
	return buf.String(), nil
}

func toHTML(n *Node) []*html.Node {
	if n.IsText() {
		return []*html.Node{{Type: html.TextNode, Data: n.Text}}
	}
	if n.Tag == Fragment {
		var out []*html.Node
		for _, c := range n.Children {
			out = append(out, toHTML(c)...)
		}
		return out
	}

	el := &html.Node{
		Type:     html.ElementNode,
		Data:     n.Tag,
		DataAtom: atom.Lookup([]byte(n.Tag)),
		Attr:     attributes(n),
	}
	for _, c := range n.Children {
		for _, hc := range toHTML(c) {
			el.AppendChild(hc)
		}
	}
	return []*html.Node{el}
}

func attributes(n *Node) []html.Attribute {
	attrs := make([]html.Attribute, 0, len(n.Attrs)+len(n.Handlers))
	for k, v := range n.Attrs {
		if !ValidAttr(k) {
			continue
		}
		attrs = append(attrs, html.Attribute{Key: k, Val: v})
	}
	for event, id := range n.Handlers {
		attrs = append(attrs, html.Attribute{Key: HandlerAttr(event), Val: id})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	return attrs
}
