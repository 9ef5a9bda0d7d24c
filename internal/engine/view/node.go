package view

import (
	"strings"
)

// Node is one element of the tree a widget render produces. Text nodes carry
// Text and no Tag; fragments carry children only.
type Node struct {
	Tag      string
	Text     string
	Attrs    map[string]string
	Handlers map[string]string // event name -> handler id
	Children []*Node
	Parent   *Node
}

// Fragment tag marks a node whose children are spliced into its parent.
const Fragment = "#fragment"

// NewElement creates an element node.
func NewElement(tag string) *Node {
	return &Node{
		Tag:   strings.ToLower(tag),
		Attrs: make(map[string]string),
	}
}

// NewText creates a text node.
func NewText(text string) *Node {
	return &Node{Text: text}
}

// NewFragment creates a fragment node.
func NewFragment(children ...*Node) *Node {
	n := &Node{Tag: Fragment}
	for _, c := range children {
		n.AddChild(c)
	}
	return n
}

// IsText reports whether n is a text node.
func (n *Node) IsText() bool {
	return n.Tag == ""
}

// AddChild appends a child, flattening fragments.
func (n *Node) AddChild(child *Node) {
	if child == nil {
		return
	}
	if child.Tag == Fragment {
		for _, c := range child.Children {
			n.AddChild(c)
		}
		return
	}
	child.Parent = n
	n.Children = append(n.Children, child)
}

// SetAttribute sets an attribute value.
func (n *Node) SetAttribute(name, value string) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[name] = value
}

// GetAttribute retrieves an attribute value.
func (n *Node) GetAttribute(name string) string {
	return n.Attrs[name]
}

// On binds an event name to a handler id.
func (n *Node) On(event, handlerID string) {
	if n.Handlers == nil {
		n.Handlers = make(map[string]string)
	}
	n.Handlers[event] = handlerID
}

// TextContent concatenates all descendant text.
func (n *Node) TextContent() string {
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	if n.IsText() {
		sb.WriteString(n.Text)
		return
	}
	for _, c := range n.Children {
		c.writeText(sb)
	}
}

// Query finds elements by a simple selector: #id, .class or tag.
func (n *Node) Query(selector string) []*Node {
	switch {
	case strings.HasPrefix(selector, "#"):
		if found := n.findByID(strings.TrimPrefix(selector, "#")); found != nil {
			return []*Node{found}
		}
		return nil
	case strings.HasPrefix(selector, "."):
		return n.findByClass(strings.TrimPrefix(selector, "."))
	default:
		return n.findByTag(selector)
	}
}

func (n *Node) findByID(id string) *Node {
	if !n.IsText() && n.Attrs["id"] == id {
		return n
	}
	for _, child := range n.Children {
		if found := child.findByID(id); found != nil {
			return found
		}
	}
	return nil
}

func (n *Node) findByClass(class string) []*Node {
	var result []*Node
	for _, c := range strings.Fields(n.Attrs["class"]) {
		if c == class {
			result = append(result, n)
			break
		}
	}
	for _, child := range n.Children {
		result = append(result, child.findByClass(class)...)
	}
	return result
}

func (n *Node) findByTag(tag string) []*Node {
	var result []*Node
	if strings.EqualFold(n.Tag, tag) {
		result = append(result, n)
	}
	for _, child := range n.Children {
		result = append(result, child.findByTag(tag)...)
	}
	return result
}
