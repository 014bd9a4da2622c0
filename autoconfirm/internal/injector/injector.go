// CLAUDE:SUMMARY Writes a value into a live editable element through an ordered strategy chain plus an unconditional synthetic event sequence.
// Package injector writes a value into a live editable element so that any
// client-side framework bound to it observes the change. Strategies are
// tried in order until one reports success; the full synthetic event
// sequence always runs afterwards.
package injector

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/autoconfirm/locate"
)

//go:embed js/*.js
var scripts embed.FS

// Script is an element-bound JS function; `this` is the target element.
type Script struct {
	Name   string
	Source string
}

func mustScript(name string) Script {
	src, err := scripts.ReadFile("js/" + name + ".js")
	if err != nil {
		panic("injector: missing script " + name)
	}
	return Script{Name: name, Source: string(src)}
}

var (
	scriptVerify        = mustScript("verify_value")
	scriptNativeSetter  = mustScript("native_setter")
	scriptContentEdit   = mustScript("content_editable")
	scriptFramework     = mustScript("framework_handler")
	scriptEventSequence = mustScript("event_sequence")
	scriptHighlight     = mustScript("highlight")
)

// Target is a live editable element.
type Target interface {
	Kind() locate.Kind
	Focus(ctx context.Context) error
	SelectAll(ctx context.Context) error
	// InsertText inserts text at the caret as if pasted.
	InsertText(ctx context.Context, text string) error
	// Call runs s with this bound to the element and reports its boolean result.
	Call(ctx context.Context, s Script, args ...any) (bool, error)
}

// Config controls the injector.
type Config struct {
	// BlurDelay separates the change event from blur/focusout. Default: 100ms.
	BlurDelay time.Duration
	// HighlightDuration is how long the success outline stays. Default: 1s.
	// Negative disables the highlight.
	HighlightDuration time.Duration

	// Strategies overrides the default chain. The event sequence is not part
	// of the chain and always runs.
	Strategies []Strategy

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BlurDelay <= 0 {
		c.BlurDelay = 100 * time.Millisecond
	}
	if c.HighlightDuration == 0 {
		c.HighlightDuration = time.Second
	}
	if c.Strategies == nil {
		c.Strategies = DefaultStrategies()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Report describes one fill.
type Report struct {
	// Strategy is the chain strategy that reported success, or "" if none did.
	Strategy string
	// Tried lists the strategies attempted, in order.
	Tried []string
}

// Injector fills live elements.
type Injector struct {
	cfg Config
}

// New creates an Injector.
func New(cfg Config) *Injector {
	cfg.defaults()
	return &Injector{cfg: cfg}
}

// Fill writes value into t. Strategy failures are logged and the chain
// continues; only a failure of the final event sequence is returned.
func (in *Injector) Fill(ctx context.Context, t Target, value string) (Report, error) {
	log := in.cfg.Logger
	kind := t.Kind()
	var rep Report

	for _, s := range in.cfg.Strategies {
		if !s.Applies(kind) {
			continue
		}
		rep.Tried = append(rep.Tried, s.Name())
		ok, err := s.Apply(ctx, t, value)
		if err != nil {
			log.Debug("injector: strategy failed", "strategy", s.Name(), "kind", kind, "error", err)
			continue
		}
		if ok {
			rep.Strategy = s.Name()
			break
		}
	}

	if _, err := t.Call(ctx, scriptEventSequence, value, in.cfg.BlurDelay.Milliseconds()); err != nil {
		return rep, fmt.Errorf("injector: event sequence: %w", err)
	}

	if in.cfg.HighlightDuration > 0 {
		if _, err := t.Call(ctx, scriptHighlight, in.cfg.HighlightDuration.Milliseconds()); err != nil {
			log.Debug("injector: highlight failed", "error", err)
		}
	}

	log.Debug("injector: filled", "kind", kind, "strategy", rep.Strategy, "tried", rep.Tried)
	return rep, nil
}
