// CLAUDE:SUMMARY Top-level daemon: owns the store, bus, engine and browser, and runs one scheduler per controlled page.
// Package autoconfirm fills the confirmation field of "type X to confirm"
// dialogs on pages it controls through Chrome.
//
// A Daemon drives one scan scheduler per page. Scans read templates over the
// bus and settings from the store, locate the confirmation field in a DOM
// snapshot and write the value through the injector. Templates and settings
// are managed over MCP or the HTTP admin API; every change triggers a rescan
// of all pages.
package autoconfirm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/browser"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/engine"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/history"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/injector"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/observer"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/scheduler"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/store"
	"github.com/hazyhaar/autoconfirm/bus"
	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/heuristic"
	"github.com/hazyhaar/autoconfirm/netguard"
	"github.com/hazyhaar/autoconfirm/release"
	"github.com/hazyhaar/autoconfirm/rules"
)

// ErrClosed is returned by operations on a closed Daemon.
var ErrClosed = errors.New("autoconfirm: daemon is closed")

// ErrPageNotFound is returned when a page ID is not attached.
type ErrPageNotFound struct {
	ID string
}

func (e *ErrPageNotFound) Error() string {
	return fmt.Sprintf("autoconfirm: page not found: %s", e.ID)
}

// ErrPageExists is returned when attaching an ID already in use.
type ErrPageExists struct {
	ID string
}

func (e *ErrPageExists) Error() string {
	return fmt.Sprintf("autoconfirm: page already attached: %s", e.ID)
}

// scanTimeout bounds one scan cycle, snapshot and fill included.
const scanTimeout = 15 * time.Second

// Daemon is the top-level orchestrator. Create one per process.
type Daemon struct {
	cfg     *Config
	logger  *slog.Logger
	version string

	store   *store.Store
	history *history.Recorder
	router  *bus.Router
	client  *bus.Client
	engine  *engine.Engine
	mgr     *browser.Manager
	release *release.Checker

	// ctx outlives individual requests; page schedulers and observers run
	// under it until Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	pages  map[string]*pageRunner
	closed bool
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the daemon logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// WithVersion sets the version compared against the latest release.
func WithVersion(v string) Option {
	return func(d *Daemon) { d.version = v }
}

// WithReleaseChecker replaces the GitHub release checker.
func WithReleaseChecker(c *release.Checker) Option {
	return func(d *Daemon) { d.release = c }
}

// New builds a Daemon over an opened database (see OpenDB). Chrome is not
// started until Run.
func New(cfg *Config, db *sql.DB, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	d := &Daemon{
		cfg:     cfg,
		logger:  slog.Default(),
		version: "dev",
		pages:   make(map[string]*pageRunner),
	}
	for _, o := range opts {
		o(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	d.store = store.New(db, d.logger)
	if err := history.Init(db); err != nil {
		return nil, err
	}

	d.router = bus.New(bus.WithLogger(d.logger))
	d.router.RegisterTransport("http", bus.HTTPFactory(netguard.Policy{AllowPrivate: cfg.AllowPrivateRoutes}))
	d.registerServices()
	if err := d.router.Load(cfg.Routes); err != nil {
		return nil, fmt.Errorf("autoconfirm: routes: %w", err)
	}
	d.client = &bus.Client{Router: d.router, Logger: d.logger}

	xopts := []heuristic.Option{heuristic.WithLogger(d.logger)}
	if cfg.PatternsFile != "" {
		table, err := heuristic.LoadTableFile(cfg.PatternsFile)
		if err != nil {
			return nil, fmt.Errorf("autoconfirm: patterns: %w", err)
		}
		xopts = append(xopts, heuristic.WithTable(table))
	}

	eng, err := engine.New(engine.Config{
		Templates: d.client,
		Settings:  d.store,
		Extractor: heuristic.New(xopts...),
		Filler: injector.New(injector.Config{
			BlurDelay:         cfg.Injector.BlurDelay,
			HighlightDuration: cfg.Injector.HighlightDuration,
			Logger:            d.logger,
		}),
		Logger: d.logger,
	})
	if err != nil {
		return nil, err
	}
	d.engine = eng

	mode := browser.ModeHeadless
	if cfg.Browser.Mode == "headful" {
		mode = browser.ModeHeadful
	}
	d.mgr = browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		Mode:             mode,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           d.logger,
	})

	if d.release == nil {
		d.release = &release.Checker{Logger: d.logger}
	}
	d.release.Current = d.version

	d.history = history.New(db, history.WithLogger(d.logger))
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Router exposes the bus, for mounting it on an HTTP server or registering
// extra services.
func (d *Daemon) Router() *bus.Router { return d.router }

// Run starts Chrome, opens the configured pages and watches the store for
// template and settings changes. It blocks until ctx ends or Close is
// called.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	if _, err := d.mgr.Start(ctx); err != nil {
		return fmt.Errorf("autoconfirm: start browser: %w", err)
	}
	d.mgr.OnRecycle(d.reopenTabs)

	for _, p := range d.cfg.Pages {
		if _, err := d.OpenPage(ctx, p.ID, p.URL); err != nil {
			d.logger.Error("autoconfirm: failed to open page", "id", p.ID, "url", p.URL, "error", err)
		}
	}

	go d.pruneHistory(ctx)
	d.WatchRules(ctx)
	return nil
}

// WatchRules rescans every page whenever templates or settings change in
// the store. It blocks until ctx ends.
func (d *Daemon) WatchRules(ctx context.Context) {
	d.store.Watch(ctx, store.WatchOptions{
		Interval: d.cfg.Store.WatchInterval,
		Debounce: d.cfg.Store.WatchDebounce,
	}, func() error {
		n := d.kickAll(scheduler.ReasonRulesChanged)
		d.logger.Info("autoconfirm: rules changed, rescanning", "pages", n)
		return nil
	})
}

// Close detaches every page and shuts down Chrome and the bus.
func (d *Daemon) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pages := d.pages
	d.pages = make(map[string]*pageRunner)
	d.mu.Unlock()

	for id, r := range pages {
		r.stop()
		d.logger.Info("autoconfirm: page detached", "id", id)
	}
	d.cancel()
	d.history.Close()
	d.router.Close()
	return d.mgr.Close()
}

// Attach drives scans of p under id. The caller keeps ownership of p;
// mutations are reported with Mutation.
func (d *Daemon) Attach(id string, p engine.Page) error {
	_, err := d.attach(id, p, nil)
	return err
}

// Mutation reports a relevant DOM change on page id.
func (d *Daemon) Mutation(id string) error {
	r, err := d.page(id)
	if err != nil {
		return err
	}
	r.sched.Mutation()
	return nil
}

// OpenPage opens pageURL in a new tab, installs the mutation observer and
// starts scanning. An empty id is generated. The returned id addresses the
// page in later calls.
func (d *Daemon) OpenPage(ctx context.Context, id, pageURL string) (string, error) {
	if id == "" {
		id = newPageID()
	}
	tab, err := browser.OpenTab(ctx, d.mgr, id, pageURL)
	if err != nil {
		return "", fmt.Errorf("autoconfirm: open %s: %w", id, err)
	}
	r, err := d.attach(id, tab, tab)
	if err != nil {
		tab.Close()
		return "", err
	}
	r.setURL(pageURL)

	obs := observer.New(observer.Config{
		Page:         tab.Page,
		PageID:       id,
		OnMutation:   r.sched.Mutation,
		OnNavigation: func(u string) { d.navigated(r, u) },
		Logger:       d.logger,
	})
	r.setObserver(obs)
	if err := obs.Start(d.ctx); err != nil {
		_ = d.ClosePage(id)
		return "", fmt.Errorf("autoconfirm: observe %s: %w", id, err)
	}

	d.logger.Info("autoconfirm: page attached", "id", id, "url", pageURL)
	return id, nil
}

// ClosePage stops scanning page id and closes its tab if the daemon opened
// it.
func (d *Daemon) ClosePage(id string) error {
	d.mu.Lock()
	r, ok := d.pages[id]
	delete(d.pages, id)
	d.mu.Unlock()
	if !ok {
		return &ErrPageNotFound{ID: id}
	}
	r.stop()
	d.logger.Info("autoconfirm: page detached", "id", id)
	return nil
}

// TriggerFill runs an immediate scan of page id and reports whether a value
// was filled. An empty id scans every page and reports whether any filled.
func (d *Daemon) TriggerFill(ctx context.Context, id string) (bool, error) {
	if id != "" {
		r, err := d.page(id)
		if err != nil {
			return false, err
		}
		return r.sched.TriggerNow(ctx)
	}

	filled := false
	var errs []error
	for _, r := range d.runners() {
		ok, err := r.sched.TriggerNow(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.id, err))
			continue
		}
		filled = filled || ok
	}
	return filled, errors.Join(errs...)
}

// PageStatus describes one controlled page.
type PageStatus struct {
	ID        string           `json:"id"`
	URL       string           `json:"url,omitempty"`
	Scheduler scheduler.Status `json:"scheduler"`
	Last      *engine.Result   `json:"last_result,omitempty"`
	LastScan  time.Time        `json:"last_scan,omitzero"`
}

// Status lists the attached pages ordered by ID.
func (d *Daemon) Status() []PageStatus {
	runners := d.runners()
	out := make([]PageStatus, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.status())
	}
	return out
}

// Plan reports what a scan of root at pageURL would fill, without writing.
func (d *Daemon) Plan(ctx context.Context, pageURL string, root *dom.Node) (engine.Result, *dom.Node) {
	return d.engine.Plan(ctx, pageURL, root)
}

// CheckUpdate compares the running version with the latest release at the
// configured releases URL.
func (d *Daemon) CheckUpdate(ctx context.Context) (release.Info, error) {
	st, err := d.store.Settings(ctx)
	if err != nil {
		return release.Info{}, err
	}
	url := st.Update.ReleasesURL
	if url == "" {
		url = rules.ReleasesURL
	}
	return d.release.Check(ctx, url)
}

func (d *Daemon) attach(id string, p engine.Page, tab *browser.Tab) (*pageRunner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if _, ok := d.pages[id]; ok {
		return nil, &ErrPageExists{ID: id}
	}
	r := &pageRunner{id: id, page: p, tab: tab}
	r.sched = scheduler.New(scheduler.Config{
		InitialDelay:  d.cfg.Scheduler.InitialDelay,
		Debounce:      d.cfg.Scheduler.Debounce,
		RetryInterval: d.cfg.Scheduler.RetryInterval,
		MaxRetries:    d.cfg.Scheduler.MaxRetries,
		Logger:        d.logger.With("page", id),
	}, d.scanFunc(r))
	d.pages[id] = r
	r.sched.Start(d.ctx)
	return r, nil
}

func (d *Daemon) scanFunc(r *pageRunner) scheduler.ScanFunc {
	return func(ctx context.Context, reason scheduler.Reason) bool {
		ctx, cancel := context.WithTimeout(ctx, scanTimeout)
		defer cancel()
		res, err := d.engine.Scan(ctx, r.page)
		if err != nil {
			d.logger.Warn("autoconfirm: scan failed", "page", r.id, "reason", reason, "error", err)
			return false
		}
		r.record(res)
		if res.Filled && !res.Unchanged {
			d.history.Record(history.Entry{
				PageID:     r.id,
				URL:        r.pageURL(ctx),
				Source:     string(res.Source),
				TemplateID: res.TemplateID,
				Tier:       string(res.Tier),
				Strategy:   res.Strategy,
				Value:      res.Value,
				Reason:     string(reason),
			})
		}
		return res.Filled
	}
}

// History returns the logged fills, newest first.
func (d *Daemon) History(ctx context.Context, f history.Filter) ([]history.Entry, error) {
	d.history.Flush()
	return d.history.Query(ctx, f)
}

func (d *Daemon) pruneHistory(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := d.history.Cleanup(ctx, d.cfg.Store.HistoryRetention)
		if err != nil {
			d.logger.Warn("autoconfirm: history cleanup failed", "error", err)
		} else if n > 0 {
			d.logger.Info("autoconfirm: history pruned", "entries", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// navigated forwards a page load to the bus so that remote coordinators
// observe it too; the local handler restarts the scan episode.
func (d *Daemon) navigated(r *pageRunner, u string) {
	if u != "" {
		r.setURL(u)
	}
	if err := d.client.PageLoaded(d.ctx, r.id); err != nil {
		d.logger.Warn("autoconfirm: page_loaded not delivered", "page", r.id, "error", err)
		r.sched.PageLoaded()
	}
}

// reopenTabs runs after a browser recycle. Tabs died with the old Chrome
// and are reopened at their last URL.
func (d *Daemon) reopenTabs(ctx context.Context, _ *rod.Browser) {
	for _, r := range d.runners() {
		if r.tab == nil {
			continue
		}
		u := r.currentURL()
		if err := d.ClosePage(r.id); err != nil {
			continue
		}
		if _, err := d.OpenPage(ctx, r.id, u); err != nil {
			d.logger.Error("autoconfirm: reopen after recycle failed", "id", r.id, "url", u, "error", err)
		}
	}
}

func (d *Daemon) kickAll(reason scheduler.Reason) int {
	runners := d.runners()
	for _, r := range runners {
		r.sched.Kick(reason)
	}
	return len(runners)
}

func (d *Daemon) page(id string) (*pageRunner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.pages[id]
	if !ok {
		return nil, &ErrPageNotFound{ID: id}
	}
	return r, nil
}

func (d *Daemon) runners() []*pageRunner {
	d.mu.Lock()
	out := make([]*pageRunner, 0, len(d.pages))
	for _, r := range d.pages {
		out = append(out, r)
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
