package autoconfirm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/engine"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/history"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/injector"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/scheduler"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/store"
	"github.com/hazyhaar/autoconfirm/bus"
	"github.com/hazyhaar/autoconfirm/dom"
	"github.com/hazyhaar/autoconfirm/locate"
	"github.com/hazyhaar/autoconfirm/netguard"
	"github.com/hazyhaar/autoconfirm/release"
	"github.com/hazyhaar/autoconfirm/rules"

	_ "modernc.org/sqlite"
)

// fakePage is a static document whose inputs keep what is typed into them.
type fakePage struct {
	url  string
	root *dom.Node

	mu    sync.Mutex
	fills []string
}

func newFakePage(t *testing.T, url, html string) *fakePage {
	t.Helper()
	root, err := dom.ParseString(html)
	if err != nil {
		t.Fatal(err)
	}
	return &fakePage{url: url, root: root}
}

func (p *fakePage) URL(context.Context) (string, error)          { return p.url, nil }
func (p *fakePage) Snapshot(context.Context) (*dom.Node, error) { return p.root, nil }
func (p *fakePage) Target(_ context.Context, n *dom.Node) (injector.Target, error) {
	return &fakeTarget{p: p, n: n}, nil
}

func (p *fakePage) filled() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.fills...)
}

type fakeTarget struct {
	p *fakePage
	n *dom.Node
}

func (t *fakeTarget) Kind() locate.Kind              { return locate.KindOf(t.n) }
func (t *fakeTarget) Focus(context.Context) error     { return nil }
func (t *fakeTarget) SelectAll(context.Context) error { return nil }
func (t *fakeTarget) InsertText(_ context.Context, text string) error {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	t.n.Value = text
	t.p.fills = append(t.p.fills, text)
	return nil
}
func (t *fakeTarget) Call(context.Context, injector.Script, ...any) (bool, error) {
	return true, nil
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Scheduler.InitialDelay = 5 * time.Millisecond
	cfg.Scheduler.Debounce = 5 * time.Millisecond
	cfg.Scheduler.RetryInterval = 10 * time.Millisecond
	cfg.Scheduler.MaxRetries = 2
	cfg.Injector.BlurDelay = time.Millisecond
	cfg.Injector.HighlightDuration = -1
	cfg.Store.WatchInterval = 5 * time.Millisecond
	cfg.Store.WatchDebounce = 5 * time.Millisecond
	return cfg
}

func testDaemon(t *testing.T, opts ...Option) *Daemon {
	t.Helper()
	d, err := New(testConfig(), store.OpenMemory(t), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

const placeholderDialog = `<body>
<div class="ant-modal"><p>请输入确认删除以继续</p><input id="in" placeholder="请输入 确认删除"></div></body>`

const quotedDialog = `<body><div role="dialog">
<p>This action cannot be undone. Please type "prod-db" to confirm.</p><input id="in"></div></body>`

func TestDaemon_AttachFillsTemplateLiteral(t *testing.T) {
	d := testDaemon(t)
	p := newFakePage(t, "https://console.example.com/cvm", placeholderDialog)
	if err := d.Attach("p1", p); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "fill", func() bool { return len(p.filled()) > 0 })
	if got := p.filled(); got[0] != "确认删除" {
		t.Fatalf("got %q, want %q", got[0], "确认删除")
	}

	waitFor(t, "status", func() bool {
		st := d.Status()
		return len(st) == 1 && st[0].Last != nil && st[0].Scheduler.Fills > 0
	})
	st := d.Status()[0]
	if st.ID != "p1" || st.Last.TemplateID != "tencent-cloud-delete-resource" {
		t.Errorf("got %+v, want p1 filled by tencent-cloud-delete-resource", st)
	}
}

func TestDaemon_TriggerAfterFillWritesNothing(t *testing.T) {
	d := testDaemon(t)
	p := newFakePage(t, "https://db.example.com/", quotedDialog)
	if err := d.Attach("p1", p); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fill", func() bool { return len(p.filled()) > 0 })
	if got := p.filled()[0]; got != "prod-db" {
		t.Fatalf("got %q, want %q", got, "prod-db")
	}

	ok, err := d.TriggerFill(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("trigger on a filled field reported a fill")
	}
	if n := len(p.filled()); n != 1 {
		t.Errorf("got %d writes, want 1", n)
	}
}

func TestDaemon_TriggerFillAllPages(t *testing.T) {
	d := testDaemon(t)
	empty := newFakePage(t, "https://a.example/", `<body><p>nothing here</p></body>`)
	if err := d.Attach("a", empty); err != nil {
		t.Fatal(err)
	}
	if ok, err := d.TriggerFill(context.Background(), ""); err != nil || ok {
		t.Fatalf("got %v, %v; want false, nil", ok, err)
	}

	dlg := newFakePage(t, "https://b.example/", quotedDialog)
	if err := d.Attach("b", dlg); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fill", func() bool { return len(dlg.filled()) > 0 })
	dlg.mu.Lock()
	dom.ElementByID(dlg.root, "in").Value = ""
	dlg.mu.Unlock()

	ok, err := d.TriggerFill(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("trigger over all pages did not report the fill on b")
	}
}

func TestDaemon_PageErrors(t *testing.T) {
	d := testDaemon(t)
	p := newFakePage(t, "https://a.example/", `<body></body>`)
	if err := d.Attach("p1", p); err != nil {
		t.Fatal(err)
	}

	var exists *ErrPageExists
	if err := d.Attach("p1", p); !errors.As(err, &exists) {
		t.Fatalf("got %v, want ErrPageExists", err)
	}
	var nf *ErrPageNotFound
	if _, err := d.TriggerFill(context.Background(), "missing"); !errors.As(err, &nf) {
		t.Fatalf("got %v, want ErrPageNotFound", err)
	}
	if err := d.Mutation("missing"); !errors.As(err, &nf) {
		t.Fatalf("got %v, want ErrPageNotFound", err)
	}

	if err := d.ClosePage("p1"); err != nil {
		t.Fatal(err)
	}
	if st := d.Status(); len(st) != 0 {
		t.Fatalf("got %d pages after close, want 0", len(st))
	}
	if err := d.ClosePage("p1"); !errors.As(err, &nf) {
		t.Fatalf("got %v, want ErrPageNotFound", err)
	}
}

func TestDaemon_ClosedRejectsAttach(t *testing.T) {
	d := testDaemon(t)
	d.Close()
	if err := d.Attach("p1", newFakePage(t, "https://a.example/", `<body></body>`)); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestDaemon_RulesChangeRescans(t *testing.T) {
	d := testDaemon(t)
	p := newFakePage(t, "https://a.example/settings", `<body><div class="settings"><input class="danger-field"></div></body>`)
	if err := d.Attach("p1", p); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.WatchRules(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, "initial scan", func() bool {
		st := d.Status()[0].Scheduler
		return st.State == scheduler.Watching && st.Scans >= 1
	})
	if n := len(p.filled()); n != 0 {
		t.Fatalf("got %d writes before the template exists, want 0", n)
	}

	_, err := d.store.AddTemplate(context.Background(), rules.Template{
		Name:      "danger",
		Enabled:   true,
		Matcher:   rules.Matcher{InputClassPattern: "danger-field"},
		FillValue: "GONE",
	})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "rescan after template change", func() bool { return len(p.filled()) > 0 })
	if got := p.filled()[0]; got != "GONE" {
		t.Fatalf("got %q, want %q", got, "GONE")
	}
}

func TestDaemon_BusServices(t *testing.T) {
	d := testDaemon(t)
	ctx := context.Background()
	client := &bus.Client{Router: d.Router()}

	if !client.Ping(ctx) {
		t.Fatal("ping failed")
	}
	if tpls := client.Templates(ctx); len(tpls) != 4 {
		t.Fatalf("got %d templates, want 4 defaults", len(tpls))
	}

	if err := client.PageLoaded(ctx, "missing"); err == nil {
		t.Fatal("page_loaded for an unknown page succeeded")
	}
	p := newFakePage(t, "https://db.example.com/", quotedDialog)
	if err := d.Attach("p1", p); err != nil {
		t.Fatal(err)
	}
	if err := client.PageLoaded(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fill after page_loaded", func() bool { return len(p.filled()) > 0 })

	ok, err := client.TriggerFill(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("trigger_fill on a filled field reported a fill")
	}
}

func TestDaemon_NoopRouteDisablesService(t *testing.T) {
	cfg := testConfig()
	cfg.Routes = []bus.Route{{Service: bus.ServiceGetTemplates, Strategy: "noop"}}
	d, err := New(cfg, store.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	p := newFakePage(t, "https://console.example.com/cvm", placeholderDialog)
	res, _ := d.Plan(context.Background(), p.url, p.root)
	if res.Source == engine.SourceTemplate || res.TemplateID != "" {
		t.Fatalf("got %+v, want no template without get_templates", res)
	}
}

func TestDaemon_DryRun(t *testing.T) {
	d := testDaemon(t)
	res, err := d.DryRun(context.Background(), "https://github.com/x/y/settings", `<body>
<p>Once you delete this repository, there is no going back.</p>
<div role="dialog"><p>To confirm, please type "y" in the box below</p>
<input id="confirm" type="text" data-repo-nwo="x/y"></div></body>`)
	if err != nil {
		t.Fatal(err)
	}
	if !res.WouldFill || res.Result.Value != "x/y" || res.Result.TemplateID != "github-delete-repo" {
		t.Fatalf("got %+v, want x/y from github-delete-repo", res)
	}
	if res.Element == nil || res.Element.ID != "confirm" {
		t.Errorf("got element %+v, want #confirm", res.Element)
	}
}

func TestDaemon_CheckUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tag_name": "v1.2.0",
			"html_url": "https://github.com/o/r/releases/tag/v1.2.0",
		})
	}))
	defer srv.Close()

	d := testDaemon(t, WithVersion("v1.0.0"), WithReleaseChecker(&release.Checker{
		APIBase: srv.URL,
		Client:  srv.Client(),
		Policy:  netguard.Policy{AllowPrivate: true},
	}))
	info, err := d.CheckUpdate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !info.UpdateAvailable || info.Latest.Tag != "v1.2.0" || info.Current != "v1.0.0" {
		t.Fatalf("got %+v, want update from v1.0.0 to v1.2.0", info)
	}
	if info.ReleasesURL != rules.ReleasesURL {
		t.Errorf("got %q, want %q", info.ReleasesURL, rules.ReleasesURL)
	}
}

func TestDaemon_HistoryLogsWrites(t *testing.T) {
	d := testDaemon(t)
	ctx := context.Background()
	p := newFakePage(t, "https://db.example.com/", quotedDialog)
	if err := d.Attach("p1", p); err != nil {
		t.Fatal(err)
	}
	logged := func() []history.Entry {
		entries, err := d.History(ctx, history.Filter{PageID: "p1"})
		if err != nil {
			t.Fatal(err)
		}
		return entries
	}
	waitFor(t, "history entry", func() bool { return len(logged()) > 0 })

	// A second scan finds the value in place and logs nothing.
	if _, err := d.TriggerFill(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	entries := logged()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Value != "prod-db" || e.Source != string(engine.SourceHeuristic) || e.URL != "https://db.example.com/" {
		t.Errorf("got %+v, want heuristic prod-db on db.example.com", e)
	}
}
