// CLAUDE:SUMMARY Async SQLite log of performed fills (page, source, template, value) with query and retention cleanup.
// Package history keeps a log of the values the daemon typed into pages.
// Entries are buffered and written in batches; the log lives next to the
// template store but in its own table, so it never bumps the store
// revision.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/autoconfirm/rules"
)

// Schema is the fill log table.
const Schema = `
CREATE TABLE IF NOT EXISTS autoconfirm_fills (
    fill_id     TEXT PRIMARY KEY,
    filled_at   INTEGER NOT NULL,
    page_id     TEXT NOT NULL,
    url         TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL,
    template_id TEXT NOT NULL DEFAULT '',
    tier        TEXT NOT NULL DEFAULT '',
    strategy    TEXT NOT NULL DEFAULT '',
    value       TEXT NOT NULL,
    reason      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_fills_page_time ON autoconfirm_fills(page_id, filled_at DESC);
CREATE INDEX IF NOT EXISTS idx_fills_time ON autoconfirm_fills(filled_at DESC);
`

// Init applies Schema.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("history: schema: %w", err)
	}
	return nil
}

// Entry is one performed fill.
type Entry struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	PageID     string    `json:"page_id"`
	URL        string    `json:"url,omitempty"`
	Source     string    `json:"source"`
	TemplateID string    `json:"template_id,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Value      string    `json:"value"`
	Reason     string    `json:"reason,omitempty"`
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	PageID string
	Since  time.Time
	// Limit defaults to 100.
	Limit int
}

const (
	batchSize     = 100
	defaultBuffer = 256
)

// Recorder persists entries asynchronously.
type Recorder struct {
	db       *sql.DB
	logger   *slog.Logger
	newID    rules.IDGenerator
	interval time.Duration

	ch      chan Entry
	flushCh chan chan struct{}
	stop    chan struct{}
	done    chan struct{}

	// mu orders Record against Close: entries accepted before Close are
	// drained, later ones are dropped.
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Recorder) { r.logger = l } }

// WithFlushInterval sets how often buffered entries are written. Default: 2s.
func WithFlushInterval(d time.Duration) Option { return func(r *Recorder) { r.interval = d } }

// New starts a Recorder over db. Init must have been applied.
func New(db *sql.DB, opts ...Option) *Recorder {
	r := &Recorder{
		db:       db,
		logger:   slog.Default(),
		newID:    rules.Prefixed("fill-", rules.UUIDv7()),
		interval: 2 * time.Second,
		ch:       make(chan Entry, defaultBuffer),
		flushCh:  make(chan chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	go r.flushLoop()
	return r
}

// Record queues e. A full buffer falls back to a synchronous insert.
// Entries recorded after Close are dropped.
func (r *Recorder) Record(e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("history: recorder closed, entry dropped", "page", e.PageID)
		return
	}
	if e.ID == "" {
		e.ID = r.newID()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case r.ch <- e:
	default:
		r.logger.Warn("history: buffer full, writing synchronously", "page", e.PageID)
		if err := r.insert(context.Background(), r.db, e); err != nil {
			r.logger.Error("history: insert failed", "error", err)
		}
	}
}

// Query returns entries newest first.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT fill_id, filled_at, page_id, url, source, template_id, tier, strategy, value, reason
		FROM autoconfirm_fills WHERE 1=1`
	var args []any
	if f.PageID != "" {
		q += " AND page_id = ?"
		args = append(args, f.PageID)
	}
	if !f.Since.IsZero() {
		q += " AND filled_at >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY filled_at DESC, fill_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.ID, &at, &e.PageID, &e.URL, &e.Source, &e.TemplateID, &e.Tier, &e.Strategy, &e.Value, &e.Reason); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.At = time.UnixMilli(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than maxAge.
func (r *Recorder) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	threshold := time.Now().Add(-maxAge).UnixMilli()
	res, err := r.db.ExecContext(ctx, `DELETE FROM autoconfirm_fills WHERE filled_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("history: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close writes the buffered entries and stops the flush goroutine.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.stop)
	})
	<-r.done
	return nil
}

// Flush writes the buffered entries and returns once they are stored.
func (r *Recorder) Flush() {
	req := make(chan struct{})
	select {
	case r.flushCh <- req:
		<-req
	case <-r.done:
	}
}

func (r *Recorder) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	batch := make([]Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.writeBatch(ctx, batch); err != nil {
			r.logger.Error("history: write batch", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	drain := func() {
		for {
			select {
			case e := <-r.ch:
				batch = append(batch, e)
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case <-r.stop:
			drain()
			return
		case req := <-r.flushCh:
			drain()
			close(req)
		case e := <-r.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *Recorder) writeBatch(ctx context.Context, batch []Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, e := range batch {
		if err := r.insert(ctx, tx, e); err != nil {
			r.logger.Error("history: insert failed", "id", e.ID, "error", err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Recorder) insert(ctx context.Context, db execer, e Entry) error {
	_, err := db.ExecContext(ctx, `INSERT INTO autoconfirm_fills
		(fill_id, filled_at, page_id, url, source, template_id, tier, strategy, value, reason)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.At.UnixMilli(), e.PageID, e.URL, e.Source, e.TemplateID, e.Tier, e.Strategy, e.Value, e.Reason)
	return err
}
