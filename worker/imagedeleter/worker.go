// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package imagedeleter

import "github.com/pangfd/ceph/core/mirror"

// removalOutcome is the one-shot barrier processActiveDelete blocks on:
// the Go shape of the original's C_SaferCond. The removal driver's
// callback writes exactly one value; run's goroutine is the only reader.
type removalOutcome struct {
	code   int32
	result mirror.ErrorResult
}

// run is the worker's body, invoked once by catacomb as Manager's only
// long-running goroutine. It is the sole caller of the removal driver,
// so there is no re-entrancy into the queues to worry about: each
// active deletion fully owns the worker until the driver reports an
// outcome.
func (m *Manager) run() error {
	defer m.cancelOnShutdown()

	for {
		m.mu.Lock()
		for m.pending.empty() {
			if !m.running {
				m.mu.Unlock()
				return nil
			}
			m.config.Logger.Tracef("[%s] waiting for delete requests", m.logContext)
			m.cond.Wait()
		}
		if !m.running {
			m.mu.Unlock()
			return nil
		}

		entry := m.pending.popBack()
		m.active = entry
		m.updateQueueMetricsLocked()
		m.mu.Unlock()

		m.processActiveDelete(entry)
	}
}

// processActiveDelete drives entry, which must already be the active
// entry, through the removal driver to completion and classifies the
// result: completed entries notify their waiter, retry-after-delay
// entries move to the failed queue, and retry-immediately entries go
// straight back onto the front of pending for run's next iteration to
// pick up.
func (m *Manager) processActiveDelete(entry *mirror.DeleteInfo) {
	m.config.Logger.Tracef("[%s] start processing delete request: %s", m.logContext, entry)

	outcome := make(chan removalOutcome, 1)
	m.config.Driver.Remove(mirror.RemovalRequest{
		IOContext:      entry.IOContext,
		GlobalImageID:  entry.GlobalImageID,
		IgnoreOrphaned: entry.IgnoreOrphaned,
	}, func(code int32, result mirror.ErrorResult) {
		outcome <- removalOutcome{code: code, result: result}
	})
	out := <-outcome

	if out.code >= 0 {
		m.completeActiveDelete(mirror.CodeSuccess, "success")
		return
	}

	if out.code == mirror.CodeBlacklisted {
		// Blacklisted is terminal even though the driver would
		// otherwise classify it as retry-after-delay: a blacklisted
		// agent cannot make progress without external intervention,
		// and re-queuing it would spin.
		m.config.Logger.Errorf("[%s] blacklisted while deleting local image %s", m.logContext, entry)
		m.completeActiveDelete(out.code, "blacklisted")
		return
	}

	switch out.result {
	case mirror.ErrorResultComplete:
		m.completeActiveDelete(out.code, "permanent")

	case mirror.ErrorResultRetryImmediately:
		m.mu.Lock()
		if entry.NotifyOnFailedRetry {
			entry.Notify(out.code)
		}
		m.pending.pushFront(entry)
		m.active = nil
		m.updateQueueMetricsLocked()
		// Signal is a no-op here since run() is the only goroutine that
		// ever waits on cond and it's the one calling this, but it keeps
		// this path symmetric with ScheduleDelete and
		// retryFailedDeletions, which push from other goroutines that do
		// need the wakeup.
		m.cond.Signal()
		m.mu.Unlock()
		m.metrics.outcomes.WithLabelValues("retry_immediate").Inc()

	default: // mirror.ErrorResultRetryAfterDelay
		m.enqueueFailedDelete(out.code)
	}
}

// completeActiveDelete fires the active entry's waiter with code, then
// drops the active slot. outcomeLabel is purely for metrics.
func (m *Manager) completeActiveDelete(code int32, outcomeLabel string) {
	m.mu.Lock()
	m.active.Notify(code)
	m.active = nil
	m.updateQueueMetricsLocked()
	m.mu.Unlock()

	m.metrics.outcomes.WithLabelValues(outcomeLabel).Inc()
}

// enqueueFailedDelete moves the active entry into the failed queue,
// stamping its error code. If notifyOnFailedRetry is set on the entry,
// its waiter fires with code; Notify clears it, so the entry stays
// queued without a waiter until someone registers a new one. If the
// failed queue was empty, a single retry-timer event is armed for
// config.RetryInterval from now, in the same critical section.
func (m *Manager) enqueueFailedDelete(code int32) {
	m.mu.Lock()
	entry := m.active
	entry.ErrorCode = code
	if entry.NotifyOnFailedRetry {
		entry.Notify(code)
	}
	wasEmpty := m.failed.empty()
	m.failed.pushFront(entry)
	m.active = nil
	if wasEmpty {
		m.armRetryTimerLocked()
	}
	m.updateQueueMetricsLocked()
	m.mu.Unlock()

	m.metrics.outcomes.WithLabelValues("retry_after_delay").Inc()
}

// armRetryTimerLocked arranges for retryFailedDeletions to run once,
// after config.RetryInterval. Callers must hold mu, so the timer's own
// lock is taken inside the coordinator's: the nested order is
// coordinator_lock -> timer_lock, and it is never reversed, since the
// timer callback runs on its own goroutine and takes mu only there.
func (m *Manager) armRetryTimerLocked() {
	m.retryCancel = m.config.RetryTimer.AddEventAfter(m.config.RetryInterval, m.retryFailedDeletions)
}

// retryFailedDeletions drains the failed queue, tail-first, into the
// pending queue's back, incrementing Retries on each moved entry, and
// wakes the worker if anything moved. It is the retry timer's callback,
// and runs on the timer's own goroutine.
func (m *Manager) retryFailedDeletions() {
	m.mu.Lock()
	moved := m.failed.drainInto(&m.pending)
	m.retryCancel = nil
	m.updateQueueMetricsLocked()
	if moved > 0 {
		m.cond.Signal()
	}
	m.mu.Unlock()

	if moved > 0 {
		m.metrics.retries.Add(float64(moved))
	}
}

// cancelOnShutdown fires every waiter still registered in the pending
// and failed queues, and on the active entry if one is mid-flight, with
// mirror.CodeCancelled. This is the resolution of the original's open
// question about shutdown semantics: rather than leaving those waiters
// unfired, this coordinator treats "the process is going away" as
// equivalent to an explicit cancellation for anyone still waiting.
func (m *Manager) cancelOnShutdown() {
	m.mu.Lock()
	if m.active != nil {
		m.active.Notify(mirror.CodeCancelled)
	}
	for _, entry := range m.pending.entries {
		entry.Notify(mirror.CodeCancelled)
	}
	for _, entry := range m.failed.entries {
		entry.Notify(mirror.CodeCancelled)
	}
	cancel := m.retryCancel
	m.retryCancel = nil
	m.mu.Unlock()

	// Called after releasing mu; the cancel func takes only the timer's
	// own lock, so this cannot reverse the coordinator_lock -> timer_lock
	// order armRetryTimerLocked uses.
	if cancel != nil {
		cancel()
	}
}
