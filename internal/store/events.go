package store

import (
	"sync"

	"github.com/jpalmerr/pulsedeck/model"
)

// MaxEvents bounds the event cache.
const MaxEvents = 100

// EventsSnapshot is a point-in-time copy of an [EventsStore].
type EventsSnapshot struct {
	Events  []model.Event `json:"events"`
	Loading bool          `json:"loading"`
	Error   *string       `json:"error"`
}

// EventsStore caches the most recent events, newest first.
type EventsStore struct {
	changes *Broadcaster

	mu      sync.RWMutex
	events  []model.Event
	loading bool
	err     *string
}

// NewEventsStore creates an empty store.
func NewEventsStore() *EventsStore {
	return &EventsStore{changes: NewBroadcaster()}
}

// Subscribe returns a channel that receives a [Change] after every mutation.
func (s *EventsStore) Subscribe() <-chan Change { return s.changes.Subscribe() }

// Unsubscribe removes a subscription and closes its channel.
func (s *EventsStore) Unsubscribe(ch <-chan Change) { s.changes.Unsubscribe(ch) }

// AddEvent puts ev at the front of the list, dropping the oldest entries
// beyond [MaxEvents].
func (s *EventsStore) AddEvent(ev model.Event) {
	s.mu.Lock()
	n := min(len(s.events)+1, MaxEvents)
	events := make([]model.Event, n)
	events[0] = ev
	copy(events[1:], s.events)
	s.events = events
	s.mu.Unlock()

	s.changes.Publish(TopicEvents)
}

// SetEvents replaces the list. events must be newest first; anything past
// [MaxEvents] is dropped.
func (s *EventsStore) SetEvents(events []model.Event) {
	if len(events) > MaxEvents {
		events = events[:MaxEvents]
	}

	s.mu.Lock()
	s.events = append([]model.Event(nil), events...)
	s.mu.Unlock()

	s.changes.Publish(TopicEvents)
}

// Events returns a copy of the list, newest first.
func (s *EventsStore) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Event(nil), s.events...)
}

// SetLoading sets the loading flag.
func (s *EventsStore) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()

	s.changes.Publish(TopicEvents)
}

// SetError records a fetch failure. An empty message clears it.
func (s *EventsStore) SetError(msg string) {
	s.mu.Lock()
	s.err = optionalString(msg)
	s.mu.Unlock()

	s.changes.Publish(TopicEvents)
}

// Snapshot returns a copy of the whole store.
func (s *EventsStore) Snapshot() EventsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return EventsSnapshot{
		Events:  append([]model.Event{}, s.events...),
		Loading: s.loading,
		Error:   copyString(s.err),
	}
}
