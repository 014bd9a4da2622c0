package scheduler

import "time"

// Session holds the ephemeral timers of one page: the mutation debounce and
// the bounded retry ticker. It is owned by the scheduler loop and never
// shared.
type Session struct {
	Retries int

	retry    *time.Ticker
	retryCh  <-chan time.Time
	debounce *time.Timer
	debCh    <-chan time.Time
}

// StartRetry arms the retry ticker and resets the counter.
func (s *Session) StartRetry(interval time.Duration) {
	s.CancelRetry()
	s.retry = time.NewTicker(interval)
	s.retryCh = s.retry.C
}

// CancelRetry stops the retry ticker and resets the counter.
func (s *Session) CancelRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	s.retryCh = nil
	s.Retries = 0
}

// Retrying reports whether the retry ticker is armed.
func (s *Session) Retrying() bool { return s.retry != nil }

// ArmDebounce (re)starts the debounce window.
func (s *Session) ArmDebounce(d time.Duration) {
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.NewTimer(d)
	s.debCh = s.debounce.C
}

// DebounceFired clears the debounce timer after its channel delivered.
func (s *Session) DebounceFired() {
	s.debounce = nil
	s.debCh = nil
}

// Close releases every timer.
func (s *Session) Close() {
	s.CancelRetry()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.DebounceFired()
}

func (s *Session) retryC() <-chan time.Time    { return s.retryCh }
func (s *Session) debounceC() <-chan time.Time { return s.debCh }
