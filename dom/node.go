// CLAUDE:SUMMARY In-memory DOM snapshot model: elements, text, shadow roots, computed style, live values.
// Package dom is the engine's view of a page: an immutable node tree built
// either from HTML (Parse) or from the JSON snapshot produced by the in-page
// collector (Decode). Open shadow roots hang off their host element so that
// traversal can pierce component boundaries.
package dom

import (
	"strings"
)

// NodeType distinguishes node kinds. Values follow the DOM nodeType numbers.
type NodeType int

const (
	ElementNode    NodeType = 1
	TextNode       NodeType = 3
	DocumentNode   NodeType = 9
	ShadowRootNode NodeType = 11
)

// Style is the subset of computed style the locator needs.
type Style struct {
	Display    string  `json:"display,omitempty"`
	Visibility string  `json:"visibility,omitempty"`
	Opacity    float64 `json:"opacity"`
	// HasBox is false when no layout information was collected.
	HasBox bool    `json:"has_box,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Node is one node of a snapshot.
type Node struct {
	Type  NodeType
	Tag   string // lower-case element name
	Attrs map[string]string
	Text  string // text nodes only
	// Value is the live value of an editable element: the value property
	// for inputs and textareas, text content for content-editable hosts.
	Value string
	Style *Style
	// Ref identifies the live element in the page the snapshot came from.
	Ref string

	Parent   *Node
	Children []*Node
	// Shadow is the open shadow root attached to an element.
	Shadow *Node
	// Host is set on shadow roots.
	Host *Node
}

// Attr returns the attribute value and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil || n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// AttrOr returns the attribute value or "" when absent.
func (n *Node) AttrOr(name string) string {
	v, _ := n.Attr(name)
	return v
}

// HasAttr reports whether the attribute is present.
func (n *Node) HasAttr(name string) bool {
	_, ok := n.Attr(name)
	return ok
}

// ClassName returns the raw class attribute.
func (n *Node) ClassName() string { return n.AttrOr("class") }

// Classes returns the class list.
func (n *Node) Classes() []string { return strings.Fields(n.ClassName()) }

// IsElement reports whether n is an element, optionally of one of tags.
func (n *Node) IsElement(tags ...string) bool {
	if n == nil || n.Type != ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Tag == t {
			return true
		}
	}
	return false
}

// ComposedParent returns the parent in the composed tree: the regular parent,
// or the host element when n is a shadow root.
func (n *Node) ComposedParent() *Node {
	if n.Parent != nil {
		return n.Parent
	}
	return n.Host
}

// Root returns the topmost node of the composed tree.
func (n *Node) Root() *Node {
	for n.ComposedParent() != nil {
		n = n.ComposedParent()
	}
	return n
}

// Walk visits n and its descendants depth-first, entering shadow roots before
// light children. Returning false from fn skips the node's subtree.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if n.Shadow != nil {
		Walk(n.Shadow, fn)
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Find returns the first node in composed depth-first order for which pred
// holds.
func Find(root *Node, pred func(*Node) bool) *Node {
	var found *Node
	Walk(root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// ElementByID finds an element by id across shadow boundaries.
func ElementByID(root *Node, id string) *Node {
	return Find(root, func(n *Node) bool {
		return n.Type == ElementNode && n.AttrOr("id") == id
	})
}

// Body returns the body element of a document, or root when absent.
func Body(root *Node) *Node {
	if b := Find(root, func(n *Node) bool { return n.IsElement("body") }); b != nil {
		return b
	}
	return root
}
