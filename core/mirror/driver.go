// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror

// IOContext is an opaque handle to the local pool that holds the
// replica being deleted. The coordinator never looks inside it; it is
// owned and shared with the caller of ScheduleDelete, and threaded
// through to the removal driver unchanged.
type IOContext interface{}

// ErrorResult classifies a removal driver failure. It only matters when
// the driver's reported code is negative; a non-negative code is always
// success regardless of the classification.
type ErrorResult int

const (
	// ErrorResultComplete is a permanent failure: the coordinator must
	// not retry this deletion itself.
	ErrorResultComplete ErrorResult = iota

	// ErrorResultRetryImmediately asks the coordinator to re-drive the
	// same deletion right away, with no intervening delay.
	ErrorResultRetryImmediately

	// ErrorResultRetryAfterDelay asks the coordinator to park the
	// deletion in the failed queue until the retry timer next fires.
	ErrorResultRetryAfterDelay
)

// RemovalRequest describes one attempt at deleting a local replica.
type RemovalRequest struct {
	IOContext      IOContext
	GlobalImageID  string
	IgnoreOrphaned bool
}

// RemovalDriver is the external asynchronous state machine that
// actually unlinks an image: forces clients off, drops snapshots,
// purges journal state. The coordinator treats it as a black box.
type RemovalDriver interface {
	// Remove begins removing the image described by req. It must
	// invoke done exactly once, off the coordinator's own goroutine,
	// with the outcome of the removal: code is zero or positive on
	// success, negative on failure, in which case result classifies
	// whether and how the coordinator should retry.
	Remove(req RemovalRequest, done func(code int32, result ErrorResult))
}
