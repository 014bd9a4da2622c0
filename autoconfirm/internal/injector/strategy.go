package injector

import (
	"context"

	"github.com/hazyhaar/autoconfirm/locate"
)

// Strategy is one way of making a synthetic write observable.
type Strategy interface {
	Name() string
	Applies(k locate.Kind) bool
	// Apply reports whether the element now holds value.
	Apply(ctx context.Context, t Target, value string) (bool, error)
}

// DefaultStrategies returns the standard chain: paste, native setter,
// content-editable insertion, framework handler.
func DefaultStrategies() []Strategy {
	return []Strategy{
		Paste{},
		NativeSetter{},
		ContentEditable{},
		FrameworkHandler{},
	}
}

// Paste focuses the field, selects its content and inserts text the way a
// clipboard paste would.
type Paste struct{}

func (Paste) Name() string { return "paste" }

func (Paste) Applies(k locate.Kind) bool {
	return k == locate.KindInput || k == locate.KindTextarea
}

func (Paste) Apply(ctx context.Context, t Target, value string) (bool, error) {
	if err := t.Focus(ctx); err != nil {
		return false, err
	}
	if err := t.SelectAll(ctx); err != nil {
		return false, err
	}
	if err := t.InsertText(ctx, value); err != nil {
		return false, err
	}
	return t.Call(ctx, scriptVerify, value)
}

// NativeSetter assigns through the prototype's value setter, bypassing
// instance-level overrides, then dispatches an insertText input event.
type NativeSetter struct{}

func (NativeSetter) Name() string { return "native_setter" }

func (NativeSetter) Applies(k locate.Kind) bool {
	return k == locate.KindInput || k == locate.KindTextarea
}

func (NativeSetter) Apply(ctx context.Context, t Target, value string) (bool, error) {
	return t.Call(ctx, scriptNativeSetter, value)
}

// ContentEditable selects the editing host's contents and inserts text,
// falling back to replacing textContent.
type ContentEditable struct{}

func (ContentEditable) Name() string { return "content_editable" }

func (ContentEditable) Applies(k locate.Kind) bool {
	return k == locate.KindContentEditable || k == locate.KindTextbox
}

func (ContentEditable) Apply(ctx context.Context, t Target, value string) (bool, error) {
	return t.Call(ctx, scriptContentEdit, value)
}

// FrameworkHandler calls the onChange handler a component framework stored
// on the element.
type FrameworkHandler struct{}

func (FrameworkHandler) Name() string { return "framework_handler" }

func (FrameworkHandler) Applies(k locate.Kind) bool { return k != locate.KindNone }

func (FrameworkHandler) Apply(ctx context.Context, t Target, value string) (bool, error) {
	return t.Call(ctx, scriptFramework, value)
}
