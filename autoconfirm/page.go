package autoconfirm

import (
	"context"
	"sync"
	"time"

	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/browser"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/engine"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/observer"
	"github.com/hazyhaar/autoconfirm/autoconfirm/internal/scheduler"
	"github.com/hazyhaar/autoconfirm/rules"
)

var _ engine.Page = (*browser.Tab)(nil)

var newPageID = rules.Prefixed("page-", rules.UUIDv7())

// pageRunner is one controlled page: its scheduler and, when the daemon
// opened it, the tab and observer.
type pageRunner struct {
	id    string
	page  engine.Page
	tab   *browser.Tab
	sched *scheduler.Scheduler

	mu       sync.Mutex
	obs      *observer.Observer
	url      string
	last     *engine.Result
	lastScan time.Time
}

func (r *pageRunner) setObserver(o *observer.Observer) {
	r.mu.Lock()
	r.obs = o
	r.mu.Unlock()
}

func (r *pageRunner) setURL(u string) {
	r.mu.Lock()
	r.url = u
	r.mu.Unlock()
}

func (r *pageRunner) currentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// pageURL returns the last known URL, asking the page when none is known.
func (r *pageRunner) pageURL(ctx context.Context) string {
	if u := r.currentURL(); u != "" {
		return u
	}
	u, err := r.page.URL(ctx)
	if err != nil {
		return ""
	}
	return u
}

func (r *pageRunner) record(res engine.Result) {
	r.mu.Lock()
	r.last = &res
	r.lastScan = time.Now()
	r.mu.Unlock()
}

func (r *pageRunner) status() PageStatus {
	st := PageStatus{ID: r.id, Scheduler: r.sched.Status()}
	r.mu.Lock()
	st.URL = r.url
	st.Last = r.last
	st.LastScan = r.lastScan
	r.mu.Unlock()
	return st
}

func (r *pageRunner) stop() {
	r.mu.Lock()
	obs := r.obs
	r.mu.Unlock()
	if obs != nil {
		obs.Stop()
	}
	r.sched.Stop()
	if r.tab != nil {
		r.tab.Close()
	}
}
