// ABOUTME: Multi-subscriber fan-out of state snapshots
// ABOUTME: Snapshot-before-iterate publishing so subscriber churn never skips anyone

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
// Dispatches beyond a slow subscriber's buffer are dropped for that
// subscriber only.
const subscriberBufferSize = 64

// Notifier fans state snapshots out to any number of subscribers. It
// decouples state mutation from rendering: the store publishes, and
// observers consume at their own pace.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]chan State
	closed      bool
	logger      *slog.Logger
}

// NewNotifier creates a notifier. Pass nil logger for default.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subscribers: make(map[string]chan State),
		logger:      logger.With("component", "notifier"),
	}
}

// Subscribe registers a subscriber and returns its snapshot channel
// and an id for manual unsubscription. The subscription is cleaned up
// automatically when ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan State, string) {
	subID := uuid.New().String()
	ch := make(chan State, subscriberBufferSize)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch, subID
	}
	n.subscribers[subID] = ch
	n.mu.Unlock()

	n.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		n.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a snapshot to every current subscriber. The subscriber
// list is copied under the read lock before iterating, so subscribing
// or unsubscribing mid-cycle never skips other subscribers. Sends are
// non-blocking: a full channel drops the snapshot for that subscriber.
func (n *Notifier) Publish(state State) {
	n.mu.RLock()
	targets := make([]chan State, 0, len(n.subscribers))
	for _, ch := range n.subscribers {
		targets = append(targets, ch)
	}
	n.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- state:
		default:
			n.logger.Debug("dropped snapshot for slow subscriber")
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (n *Notifier) Unsubscribe(subID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch, ok := n.subscribers[subID]
	if !ok {
		return
	}
	delete(n.subscribers, subID)
	close(ch)

	n.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the notifier and closes all subscriber channels.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for subID, ch := range n.subscribers {
		close(ch)
		delete(n.subscribers, subID)
	}
}
