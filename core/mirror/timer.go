// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// RetryTimer arms a single future callback, as the external timer
// service the coordinator's failed-queue retry relies on. At most one
// callback per registration ever fires.
type RetryTimer interface {
	// AddEventAfter arranges for fn to run once, after delay, on its
	// own goroutine. The returned cancel func is safe to call even
	// after fn has already fired. Safe to call while the caller holds
	// an unrelated lock; AddEventAfter itself only ever takes its own
	// internal lock, never the caller's.
	AddEventAfter(delay time.Duration, fn func()) (cancel func())
}

// clockRetryTimer is the default RetryTimer: a clock.Clock guarded by
// its own mutex, mirroring the original's SafeTimer plus the caller-held
// timer_lock it was paired with. The coordinator arms it while holding
// its own lock, fixing the nested order coordinator_lock -> timer_lock;
// this lock is never held while fn runs, so the order is never reversed.
type clockRetryTimer struct {
	mu    sync.Mutex
	clock clock.Clock
}

// NewClockRetryTimer returns a RetryTimer backed by clk.
func NewClockRetryTimer(clk clock.Clock) RetryTimer {
	return &clockRetryTimer{clock: clk}
}

// AddEventAfter is part of RetryTimer.
func (t *clockRetryTimer) AddEventAfter(delay time.Duration, fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer := t.clock.AfterFunc(delay, fn)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		timer.Stop()
	}
}
