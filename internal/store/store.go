package store

import "time"

// Topic names the part of the cache that changed.
type Topic string

const (
	TopicServices Topic = "services"
	TopicStats    Topic = "stats"
	TopicEvents   Topic = "events"
	TopicMetrics  Topic = "metrics"
	TopicSession  Topic = "session"

	// TopicMode announces that the live/polling mode may have changed.
	TopicMode Topic = "mode"
)

// Change announces that a store was mutated.
//
// Change carries no payload: consumers read the store's snapshot, which is
// always at least as new as the change that woke them.
type Change struct {
	// Topic identifies what changed.
	Topic Topic `json:"topic"`

	// At is when the mutation was applied.
	At time.Time `json:"at"`
}

// Notifier is implemented by every store.
//
// Notifier implementations must be safe for concurrent access.
type Notifier interface {
	// Subscribe returns a channel that receives changes.
	// The returned channel has a buffer; slow consumers may miss changes.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Change

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Change)
}
