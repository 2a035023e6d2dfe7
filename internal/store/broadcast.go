package store

import (
	"context"
	"sync"
	"time"
)

// subscriberBuffer is the channel buffer given to each subscriber.
const subscriberBuffer = 100

// Broadcaster is the pub/sub core shared by every store.
//
// Subscribers receive changes via buffered channels. Changes are sent
// non-blocking; if a subscriber's buffer is full, the change is dropped for
// that subscriber to prevent blocking the writer.
type Broadcaster struct {
	subMu       sync.RWMutex
	subscribers map[chan Change]struct{}
	now         func() time.Time
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Change]struct{}),
		now:         time.Now,
	}
}

// Subscribe creates a new subscription and returns a channel for receiving
// changes.
//
// The returned channel has a buffer of 100 changes. If the buffer fills
// (slow consumer), new changes are dropped for this subscriber.
//
// Caller must call Unsubscribe when done to prevent resource leaks.
func (b *Broadcaster) Subscribe() <-chan Change {
	ch := make(chan Change, subscriberBuffer)

	b.subMu.Lock()
	b.subscribers[ch] = struct{}{}
	b.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (b *Broadcaster) Unsubscribe(ch <-chan Change) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range b.subscribers {
		if subCh == ch {
			delete(b.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Publish sends a change for topic to all active subscribers.
func (b *Broadcaster) Publish(topic Topic) {
	b.send(Change{Topic: topic, At: b.now()})
}

func (b *Broadcaster) send(change Change) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- change:
		default:
			// subscriber is slow, drop the change
		}
	}
}

// Forward republishes every change from src until ctx is cancelled or src
// closes the subscription. It blocks; run it in its own goroutine.
func (b *Broadcaster) Forward(ctx context.Context, src Notifier) {
	ch := src.Subscribe()
	defer src.Unsubscribe(ch)

	for {
		select {
		case change, ok := <-ch:
			if !ok {
				return
			}
			b.send(change)
		case <-ctx.Done():
			return
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscribers)
}
