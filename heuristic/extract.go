// Package heuristic infers the phrase a confirmation dialog asks the user to
// type, without a template. It only fires for empty editable elements inside
// a dialog whose text reads like a confirmation prompt.
package heuristic

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/locate"
	"github.com/hazyhaar/autoconfirm/rules"
)

// Tier names the extraction stage that produced a value.
type Tier string

const (
	TierContext     Tier = "context"
	TierDialogText  Tier = "dialog_text"
	TierPlaceholder Tier = "placeholder"
	TierLabel       Tier = "label"
	TierQuoted      Tier = "quoted_text"
	TierPrompt      Tier = "dialog_pattern"
)

// Result is a successful extraction.
type Result struct {
	Value string
	Tier  Tier
}

// Extractor runs the tiered extraction over a pattern table.
type Extractor struct {
	table  *Table
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithTable replaces the built-in pattern table.
func WithTable(t *Table) Option {
	return func(e *Extractor) { e.table = t }
}

// New creates an Extractor using the built-in table unless overridden.
func New(opts ...Option) *Extractor {
	e := &Extractor{logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	if e.table == nil {
		e.table = DefaultTable()
	}
	return e
}

// Table returns the pattern table in use.
func (e *Extractor) Table() *Table { return e.table }

// Extract infers the confirmation phrase for el. It returns false when el
// is not empty and fillable, sits outside a dialog, the dialog is not a
// confirmation dialog, or no enabled tier yields a value.
func (e *Extractor) Extract(el *dom.Node, engines rules.GenericEngines) (Result, bool) {
	if !locate.Fillable(el) || !locate.Empty(el) {
		return Result{}, false
	}
	dlg := locate.OutermostDialog(el)
	if dlg == nil {
		return Result{}, false
	}
	text := dom.Text(dlg)
	if !e.table.IsConfirmDialog(text) {
		e.logger.Debug("heuristic: dialog is not a confirmation prompt", "chars", len(text))
		return Result{}, false
	}

	if v := e.contextValue(el); v != "" {
		return Result{Value: v, Tier: TierContext}, true
	}
	if v := firstCapture(e.table.extract, text, 1, 0); v != "" {
		return Result{Value: v, Tier: TierDialogText}, true
	}
	if engines.Placeholder {
		ph := strings.TrimSpace(el.AttrOr("placeholder"))
		if len([]rune(ph)) >= 2 && !e.table.IsGenericPrompt(ph) {
			return Result{Value: ph, Tier: TierPlaceholder}, true
		}
	}
	if engines.Label {
		if v := e.fromLabel(locate.LabelText(el)); v != "" {
			return Result{Value: v, Tier: TierLabel}, true
		}
	}
	if engines.QuotedText && e.table.quoted != nil {
		if v := firstCapture(e.quotedPatterns(), text, 2, 100); v != "" {
			return Result{Value: v, Tier: TierQuoted}, true
		}
	}
	if engines.DialogPattern {
		if v := firstCapture(e.table.prompt, text, 2, 100); v != "" {
			return Result{Value: v, Tier: TierPrompt}, true
		}
	}
	return Result{}, false
}

// contextValue looks for a literal carried by the page itself: a data
// attribute on the element, a sibling hidden verification field, or an
// emphasised fragment of the element's label.
func (e *Extractor) contextValue(el *dom.Node) string {
	for _, attr := range e.table.contextAttributes {
		if v := strings.TrimSpace(el.AttrOr(attr)); v != "" {
			return v
		}
	}
	if el.Parent != nil {
		for _, sib := range el.Parent.Children {
			if v := e.hiddenFieldValue(sib); v != "" {
				return v
			}
		}
	}
	if lbl := locate.LabelNode(el); lbl != nil {
		var frag string
		dom.Walk(lbl, func(n *dom.Node) bool {
			if frag != "" {
				return false
			}
			if n.Type == dom.ElementNode && e.table.labelEmphasis[n.Tag] {
				frag = strings.TrimSpace(dom.Text(n))
				return false
			}
			return true
		})
		if frag != "" {
			return frag
		}
	}
	return ""
}

func (e *Extractor) hiddenFieldValue(n *dom.Node) string {
	if !n.IsElement("input") || locate.InputType(n) != "hidden" {
		return ""
	}
	key := strings.ToLower(n.AttrOr("name") + " " + n.AttrOr("id"))
	for _, hint := range e.table.hiddenFieldHints {
		if strings.Contains(key, hint) {
			v := strings.TrimSpace(n.Value)
			if v == "" {
				v = strings.TrimSpace(n.AttrOr("value"))
			}
			if v != "" && !isFlagValue(v) {
				return v
			}
		}
	}
	return ""
}

// fromLabel runs quoted-text, then direct and prompt extraction over a label.
func (e *Extractor) fromLabel(label string) string {
	if label == "" {
		return ""
	}
	if e.table.quoted != nil {
		if v := firstCapture(e.quotedPatterns(), label, 1, 0); v != "" {
			return v
		}
	}
	if v := firstCapture(e.table.extract, label, 1, 0); v != "" {
		return v
	}
	return firstCapture(e.table.prompt, label, 1, 0)
}

func (e *Extractor) quotedPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{e.table.quoted}
}

// isFlagValue reports values that mark form state rather than carry a
// phrase: booleans and bare numbers.
func isFlagValue(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no", "on", "off":
		return true
	}
	return strings.Trim(v, "0123456789") == ""
}
