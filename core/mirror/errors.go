// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror

import "syscall"

// Sentinel result codes delivered to a deletion's waiter hook. These are
// the only codes the coordinator itself ever manufactures; any other
// negative code a waiter sees came from the removal driver.
const (
	// CodeSuccess indicates the image was deleted.
	CodeSuccess int32 = 0

	// CodeStale is delivered to a waiter that has been displaced by a
	// newer registration for the same identity.
	CodeStale = -int32(syscall.ESTALE)

	// CodeCancelled is delivered by CancelWaiter.
	CodeCancelled = -int32(syscall.ECANCELED)

	// CodeBlacklisted indicates the agent's cluster credentials have
	// been revoked. Treated as terminal even though the removal driver
	// would otherwise classify it as retry-after-delay: a blacklisted
	// agent cannot make progress without external intervention, and
	// re-queuing it would spin forever.
	CodeBlacklisted int32 = -108
)

// ErrorString renders a result code the way an operator expects to see
// it in status output: the coordinator's own sentinel codes get a fixed
// name, anything else falls back to the platform's errno text.
func ErrorString(code int32) string {
	switch code {
	case CodeSuccess:
		return "success"
	case CodeStale:
		return "stale waiter"
	case CodeCancelled:
		return "cancelled"
	case CodeBlacklisted:
		return "blacklisted"
	}
	if code < 0 {
		return syscall.Errno(-code).Error()
	}
	return syscall.Errno(code).Error()
}
