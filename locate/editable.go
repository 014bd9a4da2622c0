// CLAUDE:SUMMARY Finds visible, fillable editable elements across light DOM and nested shadow roots, and applies template element predicates.
// Package locate enumerates the editable elements of a snapshot and decides
// which ones a template or the heuristic extractor may write into.
package locate

import (
	"strings"

	"github.com/hazyhaar/autoconfirm/dom"
)

// Kind classifies editable elements.
type Kind int

const (
	KindNone Kind = iota
	KindInput
	KindTextarea
	KindContentEditable
	KindTextbox
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindTextarea:
		return "textarea"
	case KindContentEditable:
		return "contenteditable"
	case KindTextbox:
		return "textbox"
	}
	return "none"
}

// textEntryTypes are input types that accept typed text. The sensitive ones
// are recognised here and rejected by Fillable.
var textEntryTypes = map[string]bool{
	"": true, "text": true, "search": true, "tel": true, "url": true,
	"password": true, "email": true, "number": true,
}

var sensitiveTypes = map[string]bool{
	"password": true, "email": true, "number": true,
}

// InputType returns the normalised type attribute of an input.
func InputType(n *dom.Node) string {
	return strings.ToLower(strings.TrimSpace(n.AttrOr("type")))
}

// KindOf classifies n.
func KindOf(n *dom.Node) Kind {
	if !n.IsElement() {
		return KindNone
	}
	switch n.Tag {
	case "input":
		if textEntryTypes[InputType(n)] {
			return KindInput
		}
		return KindNone
	case "textarea":
		return KindTextarea
	}
	if editingHost(n) {
		return KindContentEditable
	}
	if strings.EqualFold(n.AttrOr("role"), "textbox") {
		return KindTextbox
	}
	return KindNone
}

func editingHost(n *dom.Node) bool {
	v, ok := n.Attr("contenteditable")
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "true", "plaintext-only":
		return true
	}
	return false
}

// Visible reports whether n renders: no composed ancestor with display:none
// or the hidden attribute, effective visibility not hidden, no transparent
// ancestor, and a non-empty box when layout is known.
func Visible(n *dom.Node) bool {
	if st := n.Style; st != nil && st.HasBox && (st.Width <= 0 || st.Height <= 0) {
		return false
	}
	visibilityDecided := false
	for p := n; p != nil; p = p.ComposedParent() {
		if p.Type != dom.ElementNode {
			continue
		}
		if p.HasAttr("hidden") {
			return false
		}
		st := p.Style
		if st == nil {
			continue
		}
		if st.Display == "none" || st.Opacity <= 0 {
			return false
		}
		if !visibilityDecided && st.Visibility != "" {
			visibilityDecided = true
			if st.Visibility == "hidden" || st.Visibility == "collapse" {
				return false
			}
		}
	}
	return true
}

// Fillable reports whether n accepts a value: an editable kind, not
// disabled, not read-only, not a sensitive input type.
func Fillable(n *dom.Node) bool {
	kind := KindOf(n)
	if kind == KindNone {
		return false
	}
	if n.HasAttr("disabled") || n.HasAttr("readonly") {
		return false
	}
	if isTrue(n.AttrOr("aria-disabled")) || isTrue(n.AttrOr("aria-readonly")) {
		return false
	}
	if kind == KindInput && sensitiveTypes[InputType(n)] {
		return false
	}
	if kind == KindTextbox && strings.EqualFold(n.AttrOr("contenteditable"), "false") {
		return false
	}
	return true
}

// Empty reports whether n holds no value.
func Empty(n *dom.Node) bool {
	return strings.TrimSpace(n.Value) == ""
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// Candidates returns the visible, fillable editable elements under root in
// composed depth-first order, descending into shadow roots at any depth.
func Candidates(root *dom.Node) []*dom.Node {
	var out []*dom.Node
	visited := make(map[*dom.Node]bool)
	var walk func(*dom.Node)
	walk = func(n *dom.Node) {
		if n == nil || visited[n] {
			return
		}
		visited[n] = true
		kind := KindOf(n)
		if kind != KindNone && Visible(n) && Fillable(n) {
			out = append(out, n)
		}
		if n.Shadow != nil {
			walk(n.Shadow)
		}
		// Descendants of an editing host are part of it.
		if kind == KindContentEditable {
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}
