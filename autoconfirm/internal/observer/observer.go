// CLAUDE:SUMMARY Injects a MutationObserver into a tab, filters reported mutations for dialogs and editables, and relays load and SPA navigation events.
// Package observer watches a tab for changes that may reveal a
// confirmation prompt. An injected MutationObserver reports summaries
// through a CDP runtime binding; Go decides relevance.
package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/autoconfirm/locate"
)

//go:embed observer.js
var observerJS string

const bindingName = "__autoconfirm_binding"

// Config configures an Observer.
type Config struct {
	Page   *rod.Page
	PageID string

	// OnMutation runs for every batch holding at least one relevant record.
	OnMutation func()
	// OnNavigation runs on Page.loadEventFired and on in-page history
	// navigation.
	OnNavigation func(url string)

	Logger *slog.Logger
}

// Observer relays page changes for one tab.
type Observer struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	remove func() error
}

// New creates an Observer. Start installs it.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnMutation == nil {
		cfg.OnMutation = func() {}
	}
	if cfg.OnNavigation == nil {
		cfg.OnNavigation = func(string) {}
	}
	return &Observer{cfg: cfg}
}

// script is the injected source: the selector prefilter followed by the
// observer itself.
func script() string {
	sel, _ := json.Marshal(map[string]string{
		"dialog":   locate.DialogSelector,
		"editable": locate.EditableSelector,
	})
	return fmt.Sprintf("window.__autoconfirm_selectors = %s;\n%s", sel, observerJS)
}

// Start registers the binding, installs the script for this and every
// future document of the tab, and listens for events until ctx ends or
// Stop is called.
func (o *Observer) Start(ctx context.Context) error {
	page := o.cfg.Page
	if err := (proto.PageEnable{}).Call(page); err != nil {
		return fmt.Errorf("observer: enable page domain: %w", err)
	}
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		return fmt.Errorf("observer: add binding: %w", err)
	}
	src := script()
	remove, err := page.EvalOnNewDocument(src)
	if err != nil {
		return fmt.Errorf("observer: install script: %w", err)
	}
	if _, err := page.Eval("() => {\n" + src + "\n}"); err != nil {
		o.cfg.Logger.Warn("observer: inject into current document failed", "page", o.cfg.PageID, "error", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.mu.Lock()
	o.cancel, o.done, o.remove = cancel, done, remove
	o.mu.Unlock()

	wait := page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				o.dispatch(e.Payload)
			}
		},
		func(e *proto.PageLoadEventFired) {
			url := ""
			if info, err := page.Info(); err == nil {
				url = info.URL
			}
			o.cfg.Logger.Debug("observer: load event", "page", o.cfg.PageID, "url", url)
			o.cfg.OnNavigation(url)
		},
	)
	go func() {
		defer close(done)
		wait()
	}()
	o.cfg.Logger.Info("observer: watching", "page", o.cfg.PageID)
	return nil
}

// Stop ends event delivery and removes the install-on-navigation script.
func (o *Observer) Stop() {
	o.mu.Lock()
	cancel, done, remove := o.cancel, o.done, o.remove
	o.cancel, o.remove = nil, nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if remove != nil {
		if err := remove(); err != nil {
			o.cfg.Logger.Debug("observer: remove script", "page", o.cfg.PageID, "error", err)
		}
	}
}

// dispatch handles one binding payload: a JSON array of records.
func (o *Observer) dispatch(payload string) {
	var recs []Record
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		o.cfg.Logger.Warn("observer: bad binding payload", "page", o.cfg.PageID, "error", err)
		return
	}
	relevant := false
	for _, r := range recs {
		if r.Op == OpNavigate {
			o.cfg.Logger.Info("observer: in-page navigation", "page", o.cfg.PageID, "url", r.URL)
			o.cfg.OnNavigation(r.URL)
			continue
		}
		if !relevant && Relevant(r) {
			relevant = true
		}
	}
	if relevant {
		o.cfg.OnMutation()
	}
}
