package store

import (
	"sort"
	"sync"

	"github.com/jpalmerr/pulsedeck/model"
)

// maxServerSamples bounds the host metrics history kept in memory.
const maxServerSamples = 720

// MetricsSnapshot is a point-in-time copy of a [MetricsStore].
type MetricsSnapshot struct {
	Server     []model.ServerMetrics            `json:"server"`
	Latest     *model.ServerMetrics             `json:"latest"`
	Docker     map[string][]model.DockerMetrics `json:"docker"`
	Containers []model.Container                `json:"containers"`
	Summary    *model.MetricsSummary            `json:"summary"`
	Live       *model.LiveMetrics               `json:"live"`
	Error      *string                          `json:"error"`
}

// MetricsStore caches host and container resource samples.
type MetricsStore struct {
	changes *Broadcaster

	mu         sync.RWMutex
	server     []model.ServerMetrics
	docker     map[string][]model.DockerMetrics
	containers []model.Container
	summary    *model.MetricsSummary
	live       *model.LiveMetrics
	err        *string
}

// NewMetricsStore creates an empty store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{
		changes: NewBroadcaster(),
		docker:  make(map[string][]model.DockerMetrics),
	}
}

// Subscribe returns a channel that receives a [Change] after every mutation.
func (s *MetricsStore) Subscribe() <-chan Change { return s.changes.Subscribe() }

// Unsubscribe removes a subscription and closes its channel.
func (s *MetricsStore) Unsubscribe(ch <-chan Change) { s.changes.Unsubscribe(ch) }

// SetServerHistory replaces the host metrics history. Samples are kept in
// timestamp order, oldest first.
func (s *MetricsStore) SetServerHistory(samples []model.ServerMetrics) {
	sorted := append([]model.ServerMetrics(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if len(sorted) > maxServerSamples {
		sorted = sorted[len(sorted)-maxServerSamples:]
	}

	s.mu.Lock()
	s.server = sorted
	s.mu.Unlock()

	s.changes.Publish(TopicMetrics)
}

// AddServerSample appends one host sample.
func (s *MetricsStore) AddServerSample(m model.ServerMetrics) {
	s.mu.Lock()
	s.server = append(s.server, m)
	if len(s.server) > maxServerSamples {
		s.server = append([]model.ServerMetrics(nil), s.server[len(s.server)-maxServerSamples:]...)
	}
	s.mu.Unlock()

	s.changes.Publish(TopicMetrics)
}

// LatestServer returns the most recent host sample.
func (s *MetricsStore) LatestServer() (model.ServerMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.server) == 0 {
		return model.ServerMetrics{}, false
	}
	return s.server[len(s.server)-1], true
}

// SetDockerHistory replaces the samples for one container. An empty
// containerID stores samples for all containers, grouped by their own id.
func (s *MetricsStore) SetDockerHistory(containerID string, samples []model.DockerMetrics) {
	s.mu.Lock()
	if containerID != "" {
		s.docker[containerID] = append([]model.DockerMetrics(nil), samples...)
	} else {
		grouped := make(map[string][]model.DockerMetrics)
		for _, m := range samples {
			grouped[m.ContainerID] = append(grouped[m.ContainerID], m)
		}
		s.docker = grouped
	}
	s.mu.Unlock()

	s.changes.Publish(TopicMetrics)
}

// DockerHistory returns the samples for one container.
func (s *MetricsStore) DockerHistory(containerID string) []model.DockerMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.DockerMetrics(nil), s.docker[containerID]...)
}

// SetContainers replaces the container list.
func (s *MetricsStore) SetContainers(containers []model.Container) {
	s.mu.Lock()
	s.containers = append([]model.Container(nil), containers...)
	s.mu.Unlock()

	s.changes.Publish(TopicMetrics)
}

// Containers returns a copy of the container list.
func (s *MetricsStore) Containers() []model.Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Container(nil), s.containers...)
}

// SetSummary replaces the rollup.
func (s *MetricsStore) SetSummary(summary model.MetricsSummary) {
	s.mu.Lock()
	s.summary = &summary
	s.mu.Unlock()

	s.changes.Publish(TopicMetrics)
}

// Summary returns the rollup, if fetched.
func (s *MetricsStore) Summary() (model.MetricsSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.summary == nil {
		return model.MetricsSummary{}, false
	}
	return *s.summary, true
}

// SetLive replaces the live snapshot. Its containers also become the
// container list.
func (s *MetricsStore) SetLive(live model.LiveMetrics) {
	s.mu.Lock()
	s.live = &live
	if live.Containers != nil {
		s.containers = append([]model.Container(nil), live.Containers...)
	}
	s.mu.Unlock()

	s.changes.Publish(TopicMetrics)
}

// SetError records a fetch failure. An empty message clears it.
func (s *MetricsStore) SetError(msg string) {
	s.mu.Lock()
	s.err = optionalString(msg)
	s.mu.Unlock()

	s.changes.Publish(TopicMetrics)
}

// Snapshot returns a copy of the whole store.
func (s *MetricsStore) Snapshot() MetricsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := MetricsSnapshot{
		Server:     append([]model.ServerMetrics{}, s.server...),
		Docker:     make(map[string][]model.DockerMetrics, len(s.docker)),
		Containers: append([]model.Container{}, s.containers...),
		Error:      copyString(s.err),
	}
	if len(s.server) > 0 {
		latest := s.server[len(s.server)-1]
		snap.Latest = &latest
	}
	for id, samples := range s.docker {
		snap.Docker[id] = append([]model.DockerMetrics(nil), samples...)
	}
	if s.summary != nil {
		summary := *s.summary
		snap.Summary = &summary
	}
	if s.live != nil {
		live := *s.live
		snap.Live = &live
	}
	return snap
}
