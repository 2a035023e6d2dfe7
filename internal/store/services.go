package store

import (
	"sync"

	"github.com/jpalmerr/pulsedeck/model"
)

// ServicesSnapshot is a point-in-time copy of a [ServicesStore].
type ServicesSnapshot struct {
	Services []model.Service     `json:"services"`
	Stats    *model.ServiceStats `json:"stats"`
	Loading  bool                `json:"loading"`
	Error    *string             `json:"error"`
}

// ServicesStore caches the monitored services and their aggregate stats.
//
// The list is replaced wholesale by [ServicesStore.SetServices] (REST
// fetches, initial snapshots) and patched one entry at a time by
// [ServicesStore.UpdateService] (pushed updates).
type ServicesStore struct {
	changes *Broadcaster

	mu       sync.RWMutex
	services []model.Service
	stats    *model.ServiceStats
	loading  bool
	err      *string
}

// NewServicesStore creates an empty store.
func NewServicesStore() *ServicesStore {
	return &ServicesStore{changes: NewBroadcaster()}
}

// Subscribe returns a channel that receives a [Change] after every mutation.
func (s *ServicesStore) Subscribe() <-chan Change { return s.changes.Subscribe() }

// Unsubscribe removes a subscription and closes its channel.
func (s *ServicesStore) Unsubscribe(ch <-chan Change) { s.changes.Unsubscribe(ch) }

// SetServices replaces the service list.
func (s *ServicesStore) SetServices(services []model.Service) {
	s.mu.Lock()
	s.services = append([]model.Service(nil), services...)
	s.mu.Unlock()

	s.changes.Publish(TopicServices)
}

// UpdateService replaces the service with the same id as svc.
//
// A service not already in the list is ignored: pushes never add services,
// only a full fetch does. It reports whether a service was replaced.
func (s *ServicesStore) UpdateService(svc model.Service) bool {
	s.mu.Lock()
	applied := false
	for i := range s.services {
		if s.services[i].ID == svc.ID {
			s.services[i] = svc
			applied = true
			break
		}
	}
	s.mu.Unlock()

	if applied {
		s.changes.Publish(TopicServices)
	}
	return applied
}

// Services returns a copy of the service list.
func (s *ServicesStore) Services() []model.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Service(nil), s.services...)
}

// Service returns the service with the given id.
func (s *ServicesStore) Service(id int) (model.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, svc := range s.services {
		if svc.ID == id {
			return svc, true
		}
	}
	return model.Service{}, false
}

// SetStats replaces the aggregate stats.
func (s *ServicesStore) SetStats(stats model.ServiceStats) {
	s.mu.Lock()
	s.stats = &stats
	s.mu.Unlock()

	s.changes.Publish(TopicStats)
}

// Stats returns the aggregate stats, if fetched.
func (s *ServicesStore) Stats() (model.ServiceStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stats == nil {
		return model.ServiceStats{}, false
	}
	return *s.stats, true
}

// SetLoading sets the loading flag.
func (s *ServicesStore) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()

	s.changes.Publish(TopicServices)
}

// SetError records a fetch failure. An empty message clears it.
func (s *ServicesStore) SetError(msg string) {
	s.mu.Lock()
	s.err = optionalString(msg)
	s.mu.Unlock()

	s.changes.Publish(TopicServices)
}

// Snapshot returns a copy of the whole store.
func (s *ServicesStore) Snapshot() ServicesSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := ServicesSnapshot{
		Services: append([]model.Service{}, s.services...),
		Loading:  s.loading,
		Error:    copyString(s.err),
	}
	if s.stats != nil {
		stats := *s.stats
		snap.Stats = &stats
	}
	return snap
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
