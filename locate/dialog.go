package locate

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/autoconfirm/dom"
)

// dialogClasses are container classes used by common component libraries.
var dialogClasses = map[string]bool{
	"dialog": true, "modal": true, "ant-modal": true, "el-dialog": true,
	"ivu-modal": true, "arco-modal": true, "t-dialog": true,
	"el-message-box": true, "n-dialog": true, "semi-modal": true,
}

// dialogClassRe accepts BEM-ish names built around modal/dialog, e.g.
// app-cam-dialog__body, ant-modal-content, van-dialog. It rejects state
// classes like modal-open.
var dialogClassRe = regexp.MustCompile(`^(?:[a-z0-9]+[-_])*(?:modal|dialog)(?:[-_]{1,2}(?:content|body|wrap|wrapper|container|panel|inner|main))?$`)

// stateWords lead classes that describe page state, not a container:
// has-modal, show-dialog, no-modal.
var stateWords = map[string]bool{
	"has": true, "is": true, "no": true, "show": true, "hide": true,
	"with": true, "open": true, "opened": true, "in": true, "without": true,
}

func isDialogClass(c string) bool {
	if dialogClasses[c] {
		return true
	}
	if !dialogClassRe.MatchString(c) {
		return false
	}
	first, _, _ := strings.Cut(strings.ReplaceAll(c, "_", "-"), "-")
	return !stateWords[first]
}

// DialogSelector is the CSS equivalent of IsDialog used by in-page scripts.
const DialogSelector = `[role="dialog"],[role="alertdialog"],[aria-modal="true"],dialog,` +
	`.dialog,.modal,.ant-modal,.el-dialog,.ivu-modal,.arco-modal,.t-dialog,` +
	`[class*="modal"],[class*="dialog"]`

// EditableSelector matches elements KindOf may classify as editable.
const EditableSelector = `input,textarea,[contenteditable],[role="textbox"]`

// IsDialog reports whether n is a dialog/modal container. The document
// root and body never are, whatever classes they carry.
func IsDialog(n *dom.Node) bool {
	if !n.IsElement() || n.Tag == "html" || n.Tag == "body" {
		return false
	}
	switch strings.ToLower(n.AttrOr("role")) {
	case "dialog", "alertdialog":
		return true
	}
	if isTrue(n.AttrOr("aria-modal")) || n.Tag == "dialog" {
		return true
	}
	for _, c := range n.Classes() {
		c = strings.ToLower(c)
		if isDialogClass(c) {
			return true
		}
	}
	return false
}

// DialogContainer returns the nearest inclusive composed ancestor of n that
// is a dialog container, or nil.
func DialogContainer(n *dom.Node) *dom.Node {
	for p := n; p != nil; p = p.ComposedParent() {
		if IsDialog(p) {
			return p
		}
	}
	return nil
}

// OutermostDialog returns the farthest dialog container enclosing n. Nested
// wrappers (modal > modal-content > modal-body) share one dialog text.
func OutermostDialog(n *dom.Node) *dom.Node {
	var out *dom.Node
	for p := n; p != nil; p = p.ComposedParent() {
		if IsDialog(p) {
			out = p
		}
	}
	return out
}
