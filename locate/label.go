package locate

import (
	"strings"

	"github.com/hazyhaar/autoconfirm/dom"
)

// LabelNode returns the element labelling el: aria-labelledby target,
// label[for=id] in the same tree, or a wrapping label.
func LabelNode(el *dom.Node) *dom.Node {
	tree := treeRoot(el)
	if ids := strings.Fields(el.AttrOr("aria-labelledby")); len(ids) > 0 {
		if n := byIDInTree(tree, ids[0]); n != nil {
			return n
		}
	}
	if id := el.AttrOr("id"); id != "" {
		if n := findInTree(tree, func(n *dom.Node) bool {
			return n.IsElement("label") && n.AttrOr("for") == id
		}); n != nil {
			return n
		}
	}
	for p := el.Parent; p != nil; p = p.Parent {
		if p.IsElement("label") {
			return p
		}
	}
	return nil
}

// LabelText returns the accessible label of el: aria-label, else the
// rendered text of LabelNode.
func LabelText(el *dom.Node) string {
	if v := strings.TrimSpace(el.AttrOr("aria-label")); v != "" {
		return v
	}
	if n := LabelNode(el); n != nil {
		return strings.TrimSpace(dom.Text(n))
	}
	return ""
}

// treeRoot climbs light-tree parents only, stopping at a document or shadow root.
func treeRoot(n *dom.Node) *dom.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// findInTree searches one tree without entering nested shadow roots.
func findInTree(root *dom.Node, pred func(*dom.Node) bool) *dom.Node {
	if pred(root) {
		return root
	}
	for _, c := range root.Children {
		if n := findInTree(c, pred); n != nil {
			return n
		}
	}
	return nil
}

func byIDInTree(root *dom.Node, id string) *dom.Node {
	return findInTree(root, func(n *dom.Node) bool {
		return n.Type == dom.ElementNode && n.AttrOr("id") == id
	})
}
