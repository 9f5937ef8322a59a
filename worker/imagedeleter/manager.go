// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package imagedeleter implements the asynchronous deletion coordinator
// for a storage cluster mirror agent: when a local replica's remote
// source is removed, demoted, or the mirror relationship is broken, the
// image must be deleted from the local pool. Deletion interacts with
// snapshots, journals and clients that may still hold the image open,
// and can fail with transient or permanent errors; this package
// serializes deletion requests, drives each to completion or a decisive
// failure, retries transient failures on a timer, and lets callers
// await or cancel a scheduled deletion.
package imagedeleter

import (
	"sync"

	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/pangfd/ceph/core/mirror"
)

// Manager is the coordinator: a long-running worker.Worker that owns at
// most one active deletion at a time, a pending queue and a failed
// queue, all guarded by a single lock. Callers schedule deletions,
// register or cancel waiters, and inspect the coordinator's state
// through Manager's exported methods; the supervising worker goroutine
// (run) is the only code that ever invokes the removal driver.
//
// Invariants, enforced under mu at every state transition:
//
//	I1: at most one active DeleteInfo exists at any time.
//	I2: an identity key appears at most once across active/pending/failed.
//	I3: findDeleteInfo scans active, then pending, then failed, and
//	    returns the first match.
//	I4: the failed queue is non-empty iff exactly one retry-timer event
//	    is armed.
//	I5: a waiter hook, once fired, is cleared in the same critical
//	    section that fired it.
type Manager struct {
	catacomb catacomb.Catacomb

	config     ManagerConfig
	logContext string
	metrics    *managerMetrics

	mu      sync.Mutex
	cond    *sync.Cond
	running bool

	active      *mirror.DeleteInfo
	pending     pendingQueue
	failed      failedQueue
	retryCancel func()
}

// NewManager returns a new *Manager configured as supplied, and starts
// its worker goroutine. The caller takes responsibility for killing,
// and handling errors from, the returned Worker.
func NewManager(config ManagerConfig) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	config = config.withDefaults()

	logContext := config.EntityUUID
	if len(logContext) > 6 {
		logContext = logContext[:6]
	}

	manager := &Manager{
		config:     config,
		logContext: logContext,
		metrics:    newManagerMetrics(),
		running:    true,
	}
	manager.cond = sync.NewCond(&manager.mu)
	manager.metrics.register(config.PrometheusRegisterer)

	err := catacomb.Invoke(catacomb.Plan{
		Site: &manager.catacomb,
		Work: manager.run,
	})
	if err != nil {
		manager.metrics.unregister(config.PrometheusRegisterer)
		return nil, errors.Trace(err)
	}
	return manager, nil
}

// Kill is part of worker.Worker. It clears the running flag and wakes
// the worker goroutine, which then exits on its next check; in-flight
// waiter hooks for anything still queued are fired with
// mirror.CodeCancelled before the worker returns (see run's deferred
// cleanup).
func (m *Manager) Kill() {
	m.mu.Lock()
	m.running = false
	m.cond.Broadcast()
	m.mu.Unlock()
	m.catacomb.Kill(nil)
}

// Wait is part of worker.Worker.
func (m *Manager) Wait() error {
	err := m.catacomb.Wait()
	m.metrics.unregister(m.config.PrometheusRegisterer)
	return err
}

// ScheduleDelete requests that the image identified by localPoolID and
// globalImageID be deleted. If a deletion with this identity is already
// known anywhere (active, pending or failed), ScheduleDelete does
// nothing except optionally upgrade its IgnoreOrphaned flag from false
// to true; this makes ScheduleDelete idempotent (P5).
func (m *Manager) ScheduleDelete(ioCtx mirror.IOContext, localPoolID int64, globalImageID string, ignoreOrphaned bool) {
	id := mirror.Identity{LocalPoolID: localPoolID, GlobalImageID: globalImageID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry := m.findDeleteInfo(id); entry != nil {
		m.config.Logger.Tracef("[%s] image %s was already scheduled for deletion", m.logContext, id)
		if ignoreOrphaned {
			entry.IgnoreOrphaned = true
		}
		return
	}

	entry := mirror.NewDeleteInfo(id, ioCtx, ignoreOrphaned)
	m.pending.pushFront(entry)
	m.updateQueueMetricsLocked()
	m.cond.Signal()
}

// WaitForScheduledDeletion registers hook to be called, exactly once, on
// its own goroutine, with the outcome of the deletion identified by
// localPoolID and globalImageID. If no such deletion is known, hook
// fires immediately with mirror.CodeSuccess: there is nothing to wait
// for. If a waiter is already registered for this identity, it fires
// with mirror.CodeStale before hook is installed. notifyOnFailedRetry
// controls whether hook fires on the first transient failure (which
// uses up its one call), rather than only on the terminal outcome.
func (m *Manager) WaitForScheduledDeletion(localPoolID int64, globalImageID string, hook mirror.CompletionHook, notifyOnFailedRetry bool) {
	id := mirror.Identity{LocalPoolID: localPoolID, GlobalImageID: globalImageID}
	wrapped := func(code int32) {
		m.config.Executor.Go(func() { hook(code) })
	}

	m.mu.Lock()
	entry := m.findDeleteInfo(id)
	if entry == nil {
		m.mu.Unlock()
		wrapped(mirror.CodeSuccess)
		return
	}

	m.config.Logger.Tracef("[%s] waiting for scheduled deletion of %s", m.logContext, id)
	previous := entry.SetWaiter(wrapped)
	entry.NotifyOnFailedRetry = notifyOnFailedRetry
	m.mu.Unlock()

	if previous != nil {
		previous(mirror.CodeStale)
	}
}

// CancelWaiter detaches any waiter registered for the deletion
// identified by localPoolID and globalImageID, firing it with
// mirror.CodeCancelled. The deletion itself, if any, is unaffected and
// continues; CancelWaiter is a no-op if there is no matching deletion
// or no registered waiter.
func (m *Manager) CancelWaiter(localPoolID int64, globalImageID string) {
	id := mirror.Identity{LocalPoolID: localPoolID, GlobalImageID: globalImageID}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.findDeleteInfo(id)
	if entry == nil {
		return
	}
	entry.Notify(mirror.CodeCancelled)
}

// findDeleteInfo scans active, then pending, then failed, and returns
// the first entry matching id, or nil. Callers must hold mu.
func (m *Manager) findDeleteInfo(id mirror.Identity) *mirror.DeleteInfo {
	if m.active != nil && m.active.Matches(id) {
		return m.active
	}
	if entry := m.pending.find(id); entry != nil {
		return entry
	}
	return m.failed.find(id)
}

func (m *Manager) updateQueueMetricsLocked() {
	m.metrics.pendingDepth.Set(float64(m.pending.len()))
	m.metrics.failedDepth.Set(float64(len(m.failed.entries)))
	if m.active != nil {
		m.metrics.active.Set(1)
	} else {
		m.metrics.active.Set(0)
	}
}
