// CLAUDE:SUMMARY Per-page scan state machine (Idle/Watching/Retrying) with debounced mutations, bounded retries and on-demand triggers.
// Package scheduler decides when a page is scanned. Every scan, timer and
// trigger of a page runs through one goroutine, so scans never overlap.
//
//	Idle --Start--> Watching --mutation/page loaded, no fill--> Retrying
//	Retrying --fill or MaxRetries scans--> Watching
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State of a page scheduler.
type State int

const (
	Idle State = iota
	Watching
	Retrying
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case Retrying:
		return "retrying"
	}
	return "idle"
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "watching":
		*s = Watching
	case "retrying":
		*s = Retrying
	default:
		return fmt.Errorf("scheduler: unknown state %q", b)
	}
	return nil
}

// Reason says why a scan runs.
type Reason string

const (
	ReasonInitial      Reason = "initial"
	ReasonMutation     Reason = "mutation"
	ReasonPageLoaded   Reason = "page_loaded"
	ReasonRetry        Reason = "retry"
	ReasonTrigger      Reason = "trigger"
	ReasonRulesChanged Reason = "rules_changed"
)

// ScanFunc runs one scan cycle and reports whether a value was filled.
type ScanFunc func(ctx context.Context, reason Reason) bool

// ErrStopped is returned by TriggerNow once the scheduler has stopped.
var ErrStopped = errors.New("scheduler: stopped")

// Config tunes the timers.
type Config struct {
	// InitialDelay before the first scan after Start. Default: 500ms.
	InitialDelay time.Duration
	// Debounce coalesces mutation bursts. Default: 300ms.
	Debounce time.Duration
	// RetryInterval between retry scans. Default: 1s.
	RetryInterval time.Duration
	// MaxRetries is the retry budget per Retrying episode. Default: 5.
	MaxRetries int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Status is a point-in-time view of a scheduler.
type Status struct {
	State      State  `json:"state"`
	Retries    int    `json:"retries"`
	Scans      int64  `json:"scans"`
	Fills      int64  `json:"fills"`
	LastReason Reason `json:"last_reason,omitempty"`
}

type triggerReq struct {
	reply chan bool
}

// Scheduler drives the scans of one page.
type Scheduler struct {
	cfg  Config
	scan ScanFunc

	mutCh    chan struct{}
	kickCh   chan Reason
	trigCh   chan triggerReq
	statusCh chan chan Status
	stopCh   chan struct{}
	done     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Scheduler in the Idle state.
func New(cfg Config, scan ScanFunc) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		cfg:      cfg,
		scan:     scan,
		mutCh:    make(chan struct{}, 1),
		kickCh:   make(chan Reason, 4),
		trigCh:   make(chan triggerReq),
		statusCh: make(chan chan Status),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start moves to Watching and schedules the initial scan. The loop runs
// until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.loop(ctx)
	})
}

// Stop ends the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

// Done is closed when the loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Mutation reports a relevant DOM mutation. Bursts are debounced into one
// scan. Never blocks.
func (s *Scheduler) Mutation() {
	select {
	case s.mutCh <- struct{}{}:
	default:
	}
}

// PageLoaded requests an immediate scan followed by retries.
func (s *Scheduler) PageLoaded() { s.Kick(ReasonPageLoaded) }

// Kick requests an immediate scan followed by retries. Never blocks;
// redundant kicks are dropped.
func (s *Scheduler) Kick(reason Reason) {
	select {
	case s.kickCh <- reason:
	default:
	}
}

// TriggerNow runs a scan in the loop and returns whether it filled.
func (s *Scheduler) TriggerNow(ctx context.Context) (bool, error) {
	req := triggerReq{reply: make(chan bool, 1)}
	select {
	case s.trigCh <- req:
	case <-s.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-req.reply:
		return ok, nil
	case <-s.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Status returns the current state. A stopped scheduler reports Idle.
func (s *Scheduler) Status() Status {
	ch := make(chan Status, 1)
	select {
	case s.statusCh <- ch:
		return <-ch
	case <-s.done:
		return Status{State: Idle}
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	log := s.cfg.Logger

	var sess Session
	defer sess.Close()

	st := Status{State: Watching}
	initial := time.NewTimer(s.cfg.InitialDelay)
	defer initial.Stop()
	initialC := initial.C

	run := func(reason Reason) bool {
		st.Scans++
		st.LastReason = reason
		filled := s.scan(ctx, reason)
		if filled {
			st.Fills++
			if sess.Retrying() {
				log.Debug("scheduler: filled, retry cancelled", "retries", sess.Retries)
			}
			sess.CancelRetry()
			st.State = Watching
		}
		return filled
	}
	// scanAndRetry enters Retrying unless the scan filled. An episode already
	// in progress keeps its budget.
	scanAndRetry := func(reason Reason) {
		if run(reason) || sess.Retrying() {
			return
		}
		sess.StartRetry(s.cfg.RetryInterval)
		st.State = Retrying
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return

		case <-initialC:
			initialC = nil
			run(ReasonInitial)

		case <-s.mutCh:
			sess.ArmDebounce(s.cfg.Debounce)

		case <-sess.debounceC():
			sess.DebounceFired()
			scanAndRetry(ReasonMutation)

		case reason := <-s.kickCh:
			scanAndRetry(reason)

		case <-sess.retryC():
			sess.Retries++
			if run(ReasonRetry) {
				continue
			}
			if sess.Retries >= s.cfg.MaxRetries {
				log.Debug("scheduler: retry budget exhausted", "retries", sess.Retries)
				sess.CancelRetry()
				st.State = Watching
			}

		case req := <-s.trigCh:
			req.reply <- run(ReasonTrigger)

		case ch := <-s.statusCh:
			cur := st
			cur.Retries = sess.Retries
			ch <- cur
		}
	}
}
