package locate

import (
	"strings"

	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/rules"
)

// MatchForTemplate returns the first candidate under root satisfying the
// matcher's element predicates. A matcher without element predicates only
// accepts candidates inside a dialog container.
func MatchForTemplate(root *dom.Node, m rules.Matcher) *dom.Node {
	for _, el := range Candidates(root) {
		if MatchesElement(el, m) {
			return el
		}
	}
	return nil
}

// MatchesElement evaluates the matcher's element-level predicates on el.
func MatchesElement(el *dom.Node, m rules.Matcher) bool {
	if !m.HasElementPredicates() {
		return DialogContainer(el) != nil
	}
	if m.PlaceholderPattern != "" {
		ph := rules.NormalizeText(el.AttrOr("placeholder"))
		if !strings.Contains(ph, rules.NormalizeText(m.PlaceholderPattern)) {
			return false
		}
	}
	if m.InputClassPattern != "" && !strings.Contains(el.ClassName(), strings.TrimSpace(m.InputClassPattern)) {
		return false
	}
	if m.ContainerClassPattern != "" && !ancestorHasClass(el, strings.TrimSpace(m.ContainerClassPattern)) {
		return false
	}
	return true
}

func ancestorHasClass(el *dom.Node, sub string) bool {
	for p := el.ComposedParent(); p != nil; p = p.ComposedParent() {
		if p.Type == dom.ElementNode && strings.Contains(p.ClassName(), sub) {
			return true
		}
	}
	return false
}
