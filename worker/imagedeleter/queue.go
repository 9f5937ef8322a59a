// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package imagedeleter

import "github.com/pangfd/ceph/core/mirror"

// pendingQueue is the deque of deletions waiting for the worker, with
// the two-ended push discipline the scheduler relies on: schedule and
// immediate retry both push to the front (LIFO, fresh work jumps the
// queue), the timed-retry path pushes to the back (FIFO among timed
// retries), and the worker always pops from the back. The net effect is
// that a freshly scheduled request is processed before any long-waiting
// timed retry, but two timed retries keep their relative order.
type pendingQueue struct {
	entries []*mirror.DeleteInfo
}

// pushFront adds entry as the next to be processed.
func (q *pendingQueue) pushFront(entry *mirror.DeleteInfo) {
	q.entries = append([]*mirror.DeleteInfo{entry}, q.entries...)
}

// pushBack adds entry as the last to be processed.
func (q *pendingQueue) pushBack(entry *mirror.DeleteInfo) {
	q.entries = append(q.entries, entry)
}

// popBack removes and returns the oldest pending entry, which is the
// one the worker processes next. Repeated pushFronts from fresh
// schedules therefore cannot starve an entry already in the queue when
// the worker is actually keeping up; they only reorder work still ahead
// of it.
func (q *pendingQueue) popBack() *mirror.DeleteInfo {
	if len(q.entries) == 0 {
		return nil
	}
	last := len(q.entries) - 1
	entry := q.entries[last]
	q.entries = q.entries[:last]
	return entry
}

func (q *pendingQueue) empty() bool {
	return len(q.entries) == 0
}

func (q *pendingQueue) len() int {
	return len(q.entries)
}

// find returns the first entry matching id, scanning front to back.
func (q *pendingQueue) find(id mirror.Identity) *mirror.DeleteInfo {
	for _, entry := range q.entries {
		if entry.Matches(id) {
			return entry
		}
	}
	return nil
}

// items returns the global image ids in the queue, front to back.
func (q *pendingQueue) items() []string {
	ids := make([]string, len(q.entries))
	for i, entry := range q.entries {
		ids[i] = entry.GlobalImageID
	}
	return ids
}

// statuses renders every entry, front to back.
func (q *pendingQueue) statuses(includeFailureDetail bool) []mirror.DeleteInfoStatus {
	out := make([]mirror.DeleteInfoStatus, len(q.entries))
	for i, entry := range q.entries {
		out[i] = entry.Render(includeFailureDetail)
	}
	return out
}

// failedQueue is the bag of deletions awaiting timed retry. It is only
// ever drained in bulk, by the retry timer, so it needs none of
// pendingQueue's ordering discipline beyond push/drain.
type failedQueue struct {
	entries []*mirror.DeleteInfo
}

// pushFront adds entry; failedQueue has no consumer-side pop, so
// "front" only matters for find's scan order (most recent failure
// first, matching the original's push_front-only usage).
func (q *failedQueue) pushFront(entry *mirror.DeleteInfo) {
	q.entries = append([]*mirror.DeleteInfo{entry}, q.entries...)
}

func (q *failedQueue) empty() bool {
	return len(q.entries) == 0
}

func (q *failedQueue) find(id mirror.Identity) *mirror.DeleteInfo {
	for _, entry := range q.entries {
		if entry.Matches(id) {
			return entry
		}
	}
	return nil
}

// drainInto moves every entry to dst's back, tail first, incrementing
// Retries on each, and empties the failed queue. Returns the number of
// entries moved.
func (q *failedQueue) drainInto(dst *pendingQueue) int {
	moved := 0
	for i := len(q.entries) - 1; i >= 0; i-- {
		entry := q.entries[i]
		entry.Retries++
		dst.pushBack(entry)
		moved++
	}
	q.entries = nil
	return moved
}

func (q *failedQueue) items() []mirror.DeleteInfoStatus {
	out := make([]mirror.DeleteInfoStatus, len(q.entries))
	for i, entry := range q.entries {
		out[i] = entry.Render(true)
	}
	return out
}

// failedItems returns (global_image_id, error_code) pairs, as
// FailedQueueItems reports them.
func (q *failedQueue) failedItems() []FailedItem {
	out := make([]FailedItem, len(q.entries))
	for i, entry := range q.entries {
		out[i] = FailedItem{GlobalImageID: entry.GlobalImageID, ErrorCode: entry.ErrorCode}
	}
	return out
}
