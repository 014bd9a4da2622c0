package browser

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/injector"
	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/locate"
)

//go:embed js/collect.js
var collectJS string

//go:embed js/resolve.js
var resolveJS string

// Tab is one controlled page.
type Tab struct {
	ID   string
	Page *rod.Page

	hijack *rod.HijackRouter
}

// OpenTab opens a stealth tab, applies resource blocking and navigates to
// pageURL. A slow load is logged, not returned.
func OpenTab(ctx context.Context, mgr *Manager, id, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: new tab: %w", err)
	}
	t := &Tab{ID: id, Page: page}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.hijack = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: load not finished", "page", id, "url", pageURL, "error", err)
	}
	return t, nil
}

// URL returns the tab's current document URL.
func (t *Tab) URL(ctx context.Context) (string, error) {
	info, err := t.Page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: target info: %w", err)
	}
	return info.URL, nil
}

// Snapshot collects the composed DOM, including open shadow roots, live
// values and computed styles. Elements are addressable by ref until the
// next snapshot.
func (t *Tab) Snapshot(ctx context.Context) (*dom.Node, error) {
	res, err := t.Page.Context(ctx).Eval(collectJS)
	if err != nil {
		return nil, fmt.Errorf("browser: collect: %w", err)
	}
	return dom.Decode([]byte(res.Value.Str()))
}

// Target resolves a node of the latest snapshot to its live element.
func (t *Tab) Target(ctx context.Context, n *dom.Node) (injector.Target, error) {
	if n.Ref == "" {
		return nil, fmt.Errorf("browser: node has no ref")
	}
	page := t.Page.Context(ctx)
	el, err := page.Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(resolveJS, n.Ref))
	if err != nil {
		return nil, fmt.Errorf("browser: resolve %s: %w", n.Ref, err)
	}
	return &element{page: t.Page, el: el, kind: locate.KindOf(n)}, nil
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.hijack != nil {
		_ = t.hijack.Stop()
		t.hijack = nil
	}
	if t.Page == nil {
		return nil
	}
	return t.Page.Close()
}

// element is a live editable element bound to its page.
type element struct {
	page *rod.Page
	el   *rod.Element
	kind locate.Kind
}

func (e *element) Kind() locate.Kind { return e.kind }

func (e *element) Focus(ctx context.Context) error {
	return e.el.Context(ctx).Focus()
}

func (e *element) SelectAll(ctx context.Context) error {
	return e.el.Context(ctx).SelectAllText()
}

func (e *element) InsertText(ctx context.Context, text string) error {
	return proto.InputInsertText{Text: text}.Call(e.page.Context(ctx))
}

func (e *element) Call(ctx context.Context, s injector.Script, args ...any) (bool, error) {
	res, err := e.el.Context(ctx).Eval(s.Source, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", s.Name, err)
	}
	return res.Value.Bool(), nil
}
