// ABOUTME: FIFO queue for outbound messages submitted while no connection is open
// ABOUTME: Flush drains in order and re-queues the unsent suffix on partial failure

package queue

import (
	"fmt"
	"sync"
	"time"
)

// Item is a user message waiting for an authenticated connection.
type Item struct {
	Content    string
	Model      string
	EnqueuedAt time.Time
}

// Queue is an ordered outbound message queue. It preserves submission
// order and never drops an item: a flush that fails mid-way keeps the
// failed item and everything after it for the next attempt.
type Queue struct {
	// flushMu serializes whole flushes; mu guards items and is never
	// held across a send callback, so Enqueue and Clear cannot block
	// behind an in-flight send.
	flushMu sync.Mutex
	mu      sync.Mutex
	items   []Item
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends an item. EnqueuedAt is stamped if unset.
func (q *Queue) Enqueue(item Item) {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Flush drains all items in FIFO order through send. Concurrent
// flushes are serialized so senders drain one at a time rather than
// interleaved; items enqueued mid-flush are picked up by the running
// drain. The items lock is held only to peek and pop, never across the
// send callback. If send fails, the failed item and the unsent suffix
// remain queued and the error is returned.
func (q *Queue) Flush(send func(Item) error) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.items = nil
			q.mu.Unlock()
			return nil
		}
		item := q.items[0]
		q.mu.Unlock()

		if err := send(item); err != nil {
			return fmt.Errorf("flushing outbound queue (%d left): %w", q.Len(), err)
		}

		q.mu.Lock()
		// A Clear may have raced the send; pop only if the sent item
		// is still at the head.
		if len(q.items) > 0 && q.items[0] == item {
			q.items = q.items[1:]
		}
		q.mu.Unlock()
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all queued items. Used on explicit disconnect only;
// involuntary drops keep the queue intact.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Snapshot returns a copy of the queued items in order.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}
