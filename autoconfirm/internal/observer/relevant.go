package observer

import (
	"encoding/json"

	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/locate"
)

// Op is the kind of a reported mutation.
type Op string

const (
	OpAdd      Op = "add"
	OpAttr     Op = "attr"
	OpNavigate Op = "__navigate"
)

// Record is one mutation as reported by the injected script. Node is a
// bounded summary of the element: tag, attributes and a few levels of
// descendants, in the snapshot wire format.
type Record struct {
	Op   Op              `json:"op"`
	Name string          `json:"name,omitempty"`
	URL  string          `json:"url,omitempty"`
	Node json.RawMessage `json:"node,omitempty"`
}

// watchedAttrs are the attribute changes that can reveal a dialog.
var watchedAttrs = map[string]bool{
	"style":       true,
	"class":       true,
	"hidden":      true,
	"aria-hidden": true,
	"open":        true,
}

// Relevant reports whether rec may have produced something to fill: an
// added subtree holding a dialog or an editable element, or a visibility
// related attribute change on a dialog.
func Relevant(rec Record) bool {
	switch rec.Op {
	case OpAdd:
		n := decode(rec.Node)
		if n == nil {
			return false
		}
		return dom.Find(n, func(x *dom.Node) bool {
			return locate.IsDialog(x) || locate.KindOf(x) != locate.KindNone
		}) != nil
	case OpAttr:
		if !watchedAttrs[rec.Name] {
			return false
		}
		n := decode(rec.Node)
		return n != nil && locate.IsDialog(n)
	}
	return false
}

func decode(raw json.RawMessage) *dom.Node {
	if len(raw) == 0 {
		return nil
	}
	n, err := dom.Decode(raw)
	if err != nil || n.Type != dom.ElementNode {
		return nil
	}
	return n
}
