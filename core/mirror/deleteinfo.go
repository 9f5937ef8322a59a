// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror

// CompletionHook is a caller's at-most-once callback for the outcome of
// a scheduled deletion.
type CompletionHook func(code int32)

// DeleteInfo is the only stateful domain entity the coordinator owns: a
// single pending, active or failed deletion request. Exactly one of the
// coordinator's active slot, pending queue or failed queue owns a given
// DeleteInfo at a time; its mutable fields are only ever touched under
// the coordinator's lock.
type DeleteInfo struct {
	Identity

	IOContext      IOContext
	IgnoreOrphaned bool

	// Retries counts how many times this entry has been promoted from
	// the failed queue back to pending. It starts at zero and never
	// resets.
	Retries uint32

	// ErrorCode is the last classified failure, or CodeSuccess while
	// nothing has failed yet.
	ErrorCode int32

	// NotifyOnFailedRetry, if set, means the waiter hook (if any) fires
	// on the first transient failure, not just on a terminal outcome.
	// Firing clears the hook, so later outcomes reach only a waiter
	// registered afterwards.
	NotifyOnFailedRetry bool

	onDelete CompletionHook
}

// NewDeleteInfo constructs a fresh entry at Retries == 0.
func NewDeleteInfo(id Identity, ioCtx IOContext, ignoreOrphaned bool) *DeleteInfo {
	return &DeleteInfo{
		Identity:       id,
		IOContext:      ioCtx,
		IgnoreOrphaned: ignoreOrphaned,
	}
}

// Matches reports whether this entry's identity is id.
func (d *DeleteInfo) Matches(id Identity) bool {
	return d.Identity == id
}

// HasWaiter reports whether a completion hook is currently registered.
func (d *DeleteInfo) HasWaiter() bool {
	return d.onDelete != nil
}

// SetWaiter installs hook as the registered completion hook, replacing
// and returning any previous one (the caller is responsible for firing
// the displaced hook, typically with CodeStale).
func (d *DeleteInfo) SetWaiter(hook CompletionHook) (previous CompletionHook) {
	previous = d.onDelete
	d.onDelete = hook
	return previous
}

// Notify fires the registered hook with code, if any, and clears it in
// the same step so it can never fire twice. The hook itself must not be
// invoked under the coordinator's lock; callers are expected to have
// already wrapped hook (via an Executor) so that dispatch happens off
// the lock.
func (d *DeleteInfo) Notify(code int32) {
	hook := d.onDelete
	if hook == nil {
		return
	}
	d.onDelete = nil
	hook(code)
}

// String renders the short log form: [local_pool_id=N, global_image_id=S].
func (d *DeleteInfo) String() string {
	return d.Identity.String()
}

// DeleteInfoStatus is the structured rendering of a DeleteInfo for
// inspection output.
type DeleteInfoStatus struct {
	LocalPoolID   int64  `json:"local_pool_id"`
	GlobalImageID string `json:"global_image_id"`
	ErrorCode     string `json:"error_code,omitempty"`
	Retries       uint32 `json:"retries,omitempty"`
}

// Render returns the structured form of this entry. includeFailureDetail
// controls whether error_code and retries are populated; pending entries
// are rendered without them, failed entries with them.
func (d *DeleteInfo) Render(includeFailureDetail bool) DeleteInfoStatus {
	status := DeleteInfoStatus{
		LocalPoolID:   d.LocalPoolID,
		GlobalImageID: d.GlobalImageID,
	}
	if includeFailureDetail {
		status.ErrorCode = ErrorString(d.ErrorCode)
		status.Retries = d.Retries
	}
	return status
}
