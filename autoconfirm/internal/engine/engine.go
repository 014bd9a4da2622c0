// CLAUDE:SUMMARY One scan cycle over a page snapshot: template literals first, heuristic extraction second, then the injector writes the value.
// Package engine runs a single detect-and-fill cycle against a page.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/injector"
	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/heuristic"
	"github.com/hazyhaar/autoconfirm/locate"
	"github.com/hazyhaar/autoconfirm/rules"
)

// Page is a controlled page as the engine sees it.
type Page interface {
	// URL returns the current document URL.
	URL(ctx context.Context) (string, error)
	// Snapshot returns the composed DOM with values and computed styles.
	Snapshot(ctx context.Context) (*dom.Node, error)
	// Target resolves a snapshot node back to its live element.
	Target(ctx context.Context, n *dom.Node) (injector.Target, error)
}

// TemplateSource supplies the ordered template list. bus.Client fits.
type TemplateSource interface {
	Templates(ctx context.Context) []rules.Template
}

// SettingsSource supplies the settings. store.Store fits.
type SettingsSource interface {
	Settings(ctx context.Context) (rules.Settings, error)
}

// Filler writes a value into a live element. injector.Injector fits.
type Filler interface {
	Fill(ctx context.Context, t injector.Target, value string) (injector.Report, error)
}

// Source tells where a filled value came from.
type Source string

const (
	SourceTemplate  Source = "template"
	SourceHeuristic Source = "heuristic"
)

// Result describes the outcome of one scan.
type Result struct {
	Filled bool `json:"filled"`
	// Unchanged is set when the element already held the template literal.
	Unchanged  bool           `json:"unchanged,omitempty"`
	Source     Source         `json:"source,omitempty"`
	TemplateID string         `json:"template_id,omitempty"`
	Tier       heuristic.Tier `json:"tier,omitempty"`
	Value      string         `json:"value,omitempty"`
	Strategy   string         `json:"strategy,omitempty"`
}

// Config wires the engine's collaborators.
type Config struct {
	Templates TemplateSource
	Settings  SettingsSource
	Extractor *heuristic.Extractor
	Filler    Filler
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Extractor == nil {
		c.Extractor = heuristic.New(heuristic.WithLogger(c.Logger))
	}
	if c.Filler == nil {
		c.Filler = injector.New(injector.Config{Logger: c.Logger})
	}
}

// Engine runs scans. Safe for concurrent use across pages.
type Engine struct {
	cfg Config
}

// New creates an Engine. Templates and Settings are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Templates == nil || cfg.Settings == nil {
		return nil, fmt.Errorf("engine: templates and settings sources are required")
	}
	cfg.defaults()
	return &Engine{cfg: cfg}, nil
}

// Scan runs one cycle against p: Plan over a fresh snapshot, then fill
// the chosen element. A page with nothing to fill returns a zero Result
// and no error.
func (e *Engine) Scan(ctx context.Context, p Page) (Result, error) {
	root, err := p.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("engine: snapshot: %w", err)
	}
	url, err := p.URL(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("engine: url: %w", err)
	}
	res, el := e.Plan(ctx, url, root)
	if el == nil || res.Unchanged {
		return res, nil
	}
	return e.fill(ctx, p, el, res)
}

// Plan decides what a scan of root would fill without touching the page.
// Templates are tried in list order; the first one that locates an element
// and yields a value wins. When none does, every candidate is offered to
// the extractor. The returned node is nil when there is nothing to write,
// including when the element already holds the template literal.
func (e *Engine) Plan(ctx context.Context, url string, root *dom.Node) (Result, *dom.Node) {
	log := e.cfg.Logger

	settings, err := e.cfg.Settings.Settings(ctx)
	if err != nil {
		log.Warn("engine: settings unavailable, using defaults", "error", err)
		settings = rules.DefaultSettings()
	}
	templates := e.cfg.Templates.Templates(ctx)

	pageText := dom.Text(root)
	for _, tpl := range rules.Matching(templates, url, pageText) {
		el := locate.MatchForTemplate(root, tpl.Matcher)
		if el == nil {
			log.Debug("engine: template matched page but no element", "template", tpl.ID)
			continue
		}
		res := Result{Source: SourceTemplate, TemplateID: tpl.ID}
		if tpl.FillValue != "" {
			res.Value = tpl.FillValue
			if el.Value == tpl.FillValue {
				res.Filled, res.Unchanged = true, true
				return res, nil
			}
			return res, el
		}
		r, ok := e.cfg.Extractor.Extract(el, settings.GenericEngines)
		if !ok {
			continue
		}
		res.Value, res.Tier = r.Value, r.Tier
		return res, el
	}

	for _, el := range locate.Candidates(root) {
		if r, ok := e.cfg.Extractor.Extract(el, settings.GenericEngines); ok {
			return Result{Source: SourceHeuristic, Tier: r.Tier, Value: r.Value}, el
		}
	}
	return Result{}, nil
}

func (e *Engine) fill(ctx context.Context, p Page, el *dom.Node, res Result) (Result, error) {
	t, err := p.Target(ctx, el)
	if err != nil {
		return Result{}, fmt.Errorf("engine: resolve element: %w", err)
	}
	rep, err := e.cfg.Filler.Fill(ctx, t, res.Value)
	if err != nil {
		return Result{}, fmt.Errorf("engine: fill: %w", err)
	}
	res.Filled = true
	res.Strategy = rep.Strategy
	e.cfg.Logger.Info("engine: filled",
		"source", res.Source, "template", res.TemplateID, "tier", res.Tier,
		"strategy", res.Strategy, "chars", len([]rune(res.Value)))
	return res, nil
}
