// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package mirror defines the types and contracts shared by the rbd-mirror
// agent's image deletion coordinator and the external collaborators it
// drives: the removal driver, the retry timer, and the hook dispatcher.
package mirror

import "fmt"

// Identity is the key by which a scheduled deletion is known: the pool
// that holds the local replica, and the cluster-wide image id. At any
// instant an Identity appears at most once across a coordinator's
// active slot, pending queue and failed queue.
type Identity struct {
	LocalPoolID   int64
	GlobalImageID string
}

// String renders the identity in the short log form used throughout the
// coordinator: "[local_pool_id=N, global_image_id=S]".
func (id Identity) String() string {
	return fmt.Sprintf("[local_pool_id=%d, global_image_id=%s]", id.LocalPoolID, id.GlobalImageID)
}
