// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror

// Executor dispatches a completion hook off whatever goroutine fired it.
// The coordinator never invokes a waiter hook while holding its own
// lock; this is the seam that lets it hand the call elsewhere instead.
type Executor interface {
	// Go runs fn on its own goroutine, never synchronously on the
	// caller.
	Go(fn func())
}

// GoExecutor is the default Executor: every call to Go gets its own
// goroutine. Tests typically inject a synchronous fake instead, so that
// hook firing is observable without a sleep.
type GoExecutor struct{}

// Go is part of Executor.
func (GoExecutor) Go(fn func()) {
	go fn()
}
