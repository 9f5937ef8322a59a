// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package imagedeleter

import "github.com/pangfd/ceph/core/mirror"

// FailedItem is one entry of FailedQueueItems: a global image id paired
// with the error code that last sent it to the failed queue.
type FailedItem struct {
	GlobalImageID string
	ErrorCode     int32
}

// DeleterStatusDoc is the structured inspection document, matching the
// wire shape an admin command would emit: pending queue, then failed
// queue. The active entry is deliberately omitted, matching the
// original's behavior (the open question of whether that's intentional
// is resolved in favor of literal compatibility; Report, below, does
// include the active entry, for operators who need it).
type DeleterStatusDoc struct {
	Status struct {
		DeleteImagesQueue  []mirror.DeleteInfoStatus `json:"delete_images_queue"`
		FailedDeletesQueue []mirror.DeleteInfoStatus `json:"failed_deletes_queue"`
	} `json:"image_deleter_status"`
}

// Status renders the pending and failed queues for an operator, in the
// same shape as the `rbd mirror deletion status` admin command the
// original exposes. Registering that command's transport is out of
// scope for this package; Status is what such a command would call.
func (m *Manager) Status() DeleterStatusDoc {
	m.mu.Lock()
	defer m.mu.Unlock()

	var doc DeleterStatusDoc
	doc.Status.DeleteImagesQueue = m.pending.statuses(false)
	doc.Status.FailedDeletesQueue = m.failed.items()
	return doc
}

// DeleteQueueItems returns the global image ids in the pending queue,
// front to back.
func (m *Manager) DeleteQueueItems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.items()
}

// FailedQueueItems returns (global_image_id, error_code) pairs for
// every entry in the failed queue.
func (m *Manager) FailedQueueItems() []FailedItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed.failedItems()
}

// Report is part of the dependency engine's Reporter convention: unlike
// Status, it includes the active entry, since this surface exists for
// operators debugging a stuck worker, where omitting the one entry
// actually in flight would be actively unhelpful.
func (m *Manager) Report() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]interface{}{
		"entity-uuid":   m.config.EntityUUID,
		"pending-depth": m.pending.len(),
		"failed-depth":  len(m.failed.entries),
		"retry-armed":   m.retryCancel != nil,
	}
	if m.active != nil {
		out["active"] = m.active.Render(true)
	}
	return out
}
