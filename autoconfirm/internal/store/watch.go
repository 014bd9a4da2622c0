package store

import (
	"context"
	"time"
)

// WatchOptions tunes Watch.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before action fires.
	// 0 fires immediately.
	Debounce time.Duration
}

// Watch polls the store revision until ctx ends and calls action once per
// settled change. If action fails the revision is not recorded and the
// change fires again on the next poll.
func (s *Store) Watch(ctx context.Context, opts WatchOptions, action func() error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	log := s.Logger

	seen, err := s.Revision(ctx)
	if err != nil {
		log.Warn("store: initial revision check failed", "error", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	fire := func(rev int64) {
		if err := action(); err != nil {
			log.Error("store: change action failed", "revision", rev, "error", err)
			return
		}
		seen = rev
		log.Debug("store: change applied", "revision", rev)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			cur, err := s.Revision(ctx)
			if err != nil {
				log.Warn("store: revision check failed", "error", err)
				continue
			}
			if cur == seen || cur == pending {
				continue
			}
			pending = cur
			if opts.Debounce <= 0 {
				fire(pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				fire(pending)
				pending = -1
			}
		}
	}
}
