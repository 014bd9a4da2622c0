package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// recorder is a ScanFunc that records reasons and fills on demand.
type recorder struct {
	mu      sync.Mutex
	reasons []Reason
	fillOn  func(n int, r Reason) bool
}

func (r *recorder) scan(_ context.Context, reason Reason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	if r.fillOn == nil {
		return false
	}
	return r.fillOn(len(r.reasons), reason)
}

func (r *recorder) count(reason Reason) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.reasons {
		if x == reason {
			n++
		}
	}
	return n
}

func fastConfig() Config {
	return Config{
		InitialDelay:  time.Millisecond,
		Debounce:      5 * time.Millisecond,
		RetryInterval: 2 * time.Millisecond,
		MaxRetries:    4,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestScheduler_InitialScan(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := &recorder{}
	s := New(fastConfig(), rec.scan)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, "initial scan", func() bool { return rec.count(ReasonInitial) == 1 })
	if st := s.Status(); st.State != Watching {
		t.Fatalf("state: got %s, want watching", st.State)
	}
}

func TestScheduler_RetryBudgetExhausts(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := &recorder{}
	cfg := fastConfig()
	s := New(cfg, rec.scan)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, "initial scan", func() bool { return rec.count(ReasonInitial) == 1 })
	s.Mutation()
	waitFor(t, "retries", func() bool { return rec.count(ReasonRetry) >= cfg.MaxRetries })
	waitFor(t, "watching", func() bool { return s.Status().State == Watching })

	time.Sleep(10 * cfg.RetryInterval)
	if got := rec.count(ReasonRetry); got != cfg.MaxRetries {
		t.Fatalf("retry scans: got %d, want %d", got, cfg.MaxRetries)
	}
	st := s.Status()
	if st.State != Watching || st.Retries != 0 {
		t.Fatalf("got state=%s retries=%d, want watching/0", st.State, st.Retries)
	}
	if got := rec.count(ReasonMutation); got != 1 {
		t.Fatalf("mutation scans: got %d, want 1", got)
	}
}

func TestScheduler_DebounceCoalesces(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := &recorder{}
	cfg := fastConfig()
	cfg.Debounce = 30 * time.Millisecond
	cfg.RetryInterval = time.Hour
	s := New(cfg, rec.scan)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, "initial scan", func() bool { return rec.count(ReasonInitial) == 1 })
	for i := 0; i < 10; i++ {
		s.Mutation()
		time.Sleep(time.Millisecond)
	}
	waitFor(t, "mutation scan", func() bool { return rec.count(ReasonMutation) == 1 })
	time.Sleep(2 * cfg.Debounce)
	if got := rec.count(ReasonMutation); got != 1 {
		t.Fatalf("mutation scans: got %d, want 1", got)
	}
	if st := s.Status(); st.State != Retrying {
		t.Fatalf("state: got %s, want retrying", st.State)
	}
}

func TestScheduler_FillCancelsRetry(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := &recorder{fillOn: func(_ int, r Reason) bool { return r == ReasonRetry }}
	cfg := fastConfig()
	cfg.MaxRetries = 100
	s := New(cfg, rec.scan)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, "initial scan", func() bool { return rec.count(ReasonInitial) == 1 })
	s.PageLoaded()
	waitFor(t, "page loaded scan", func() bool { return rec.count(ReasonPageLoaded) == 1 })
	waitFor(t, "first retry", func() bool { return rec.count(ReasonRetry) == 1 })
	time.Sleep(10 * cfg.RetryInterval)
	if got := rec.count(ReasonRetry); got != 1 {
		t.Fatalf("retry scans after fill: got %d, want 1", got)
	}
	st := s.Status()
	if st.State != Watching || st.Fills != 1 {
		t.Fatalf("got %+v, want watching with one fill", st)
	}
}

func TestScheduler_MutationDuringRetryKeepsBudget(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := &recorder{}
	cfg := fastConfig()
	cfg.RetryInterval = 20 * time.Millisecond
	cfg.Debounce = time.Millisecond
	cfg.MaxRetries = 3
	s := New(cfg, rec.scan)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, "initial scan", func() bool { return rec.count(ReasonInitial) == 1 })
	s.Mutation()
	waitFor(t, "first retry", func() bool { return rec.count(ReasonRetry) == 1 })
	s.Mutation()
	waitFor(t, "second mutation scan", func() bool { return rec.count(ReasonMutation) == 2 })
	waitFor(t, "watching", func() bool {
		return rec.count(ReasonRetry) == cfg.MaxRetries && s.Status().State == Watching
	})
}

func TestScheduler_TriggerNow(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := &recorder{fillOn: func(_ int, r Reason) bool { return r == ReasonTrigger }}
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour
	s := New(cfg, rec.scan)
	s.Start(context.Background())

	ok, err := s.TriggerNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("trigger did not report the fill")
	}
	s.Stop()

	if _, err := s.TriggerNow(context.Background()); err != ErrStopped {
		t.Fatalf("got %v, want ErrStopped", err)
	}
	if st := s.Status(); st.State != Idle {
		t.Fatalf("stopped state: got %s, want idle", st.State)
	}
}

func TestScheduler_ContextCancelStops(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := New(fastConfig(), (&recorder{}).scan)
	s.Start(ctx)
	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on cancel")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := New(Config{}, (&recorder{}).scan)
	s.Stop()
	if st := s.Status(); st.State != Idle {
		t.Fatalf("got %s, want idle", st.State)
	}
}

func TestStatus_JSONRoundTrip(t *testing.T) {
	for _, st := range []State{Idle, Watching, Retrying} {
		in := Status{State: st, Scans: 3, Fills: 1, Retries: 2, LastReason: ReasonRetry}
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatal(err)
		}
		var out Status
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s: %v", data, err)
		}
		if out != in {
			t.Errorf("got %+v, want %+v", out, in)
		}
	}

	var st State
	if err := json.Unmarshal([]byte(`"paused"`), &st); err == nil {
		t.Error("unknown state accepted")
	}
}
