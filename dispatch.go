package pulsedeck

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsedeck/internal/store"
	"github.com/jpalmerr/pulsedeck/internal/telemetry"
	"github.com/jpalmerr/pulsedeck/internal/wsclient"
	"github.com/jpalmerr/pulsedeck/message"
)

// ErrNotWatching is returned by [Dashboard.RequestLogs] for a service that
// has no open per-service channel.
var ErrNotWatching = errors.New("service is not being watched")

// ServiceChannel returns the per-service channel path for id.
func ServiceChannel(id int) string {
	return fmt.Sprintf("/ws/services/%d/", id)
}

// channelHandler returns the handler for one of the shared channels.
func (d *Dashboard) channelHandler(path string) wsclient.Handler {
	var apply func(message.Message)
	switch path {
	case ChannelServices:
		apply = d.applyServicesMessage
	case ChannelEvents:
		apply = d.applyEventsMessage
	case ChannelMonitoring:
		apply = d.applyMonitoringMessage
	case ChannelAlerts:
		apply = d.applyAlertsMessage
	default:
		apply = func(msg message.Message) {
			d.logger.Debug("ignoring message on unhandled channel", "path", path, "type", msg.Kind())
		}
	}
	return func(msg message.Message) {
		apply(msg)
		d.notifyCallbacks(path, msg)
	}
}

func (d *Dashboard) applyServicesMessage(msg message.Message) {
	switch m := msg.(type) {
	case message.InitialData:
		if m.Services != nil {
			d.services.SetServices(m.Services)
		}
	case message.ServiceUpdate:
		if !d.services.UpdateService(m.Service) {
			d.logger.Debug("update for unknown service ignored", "service_id", m.Service.ID)
		}
	case message.StatusChange:
		d.logger.Info("service status changed",
			"service_id", m.ServiceID,
			"from", m.OldStatus,
			"to", m.NewStatus,
		)
	case message.Pong:
		d.logger.Debug("pong received", "path", ChannelServices)
	case message.Error:
		d.logger.Warn("backend rejected a frame", "path", ChannelServices, "message", m.Message)
	default:
		d.logger.Debug("unhandled message", "path", ChannelServices, "type", msg.Kind())
	}
}

func (d *Dashboard) applyEventsMessage(msg message.Message) {
	switch m := msg.(type) {
	case message.NewEvent:
		d.events.AddEvent(m.Event)
	case message.Error:
		d.logger.Warn("backend rejected a frame", "path", ChannelEvents, "message", m.Message)
	default:
		d.logger.Debug("unhandled message", "path", ChannelEvents, "type", msg.Kind())
	}
}

func (d *Dashboard) applyMonitoringMessage(msg message.Message) {
	switch m := msg.(type) {
	case message.MetricsUpdate:
		d.metrics.AddServerSample(m.Metrics)
	case message.ContainerUpdate:
		d.metrics.SetContainers(m.Containers)
	case message.Error:
		d.logger.Warn("backend rejected a frame", "path", ChannelMonitoring, "message", m.Message)
	default:
		d.logger.Debug("unhandled message", "path", ChannelMonitoring, "type", msg.Kind())
	}
}

// applyAlertsMessage logs alert transitions. Alerts are not cached; message
// callbacks see every frame.
func (d *Dashboard) applyAlertsMessage(msg message.Message) {
	switch m := msg.(type) {
	case message.NewAlert:
		d.logger.Info("alert triggered",
			"alert_id", m.Alert.ID,
			"service", m.Alert.ServiceName,
			"title", m.Alert.Title,
		)
	case message.AlertResolved:
		d.logger.Info("alert resolved", "alert_id", m.AlertID)
	case message.Error:
		d.logger.Warn("backend rejected a frame", "path", ChannelAlerts, "message", m.Message)
	default:
		d.logger.Debug("unhandled message", "path", ChannelAlerts, "type", msg.Kind())
	}
}

// applyServiceDetailMessage handles a per-service channel.
func (d *Dashboard) applyServiceDetailMessage(path string, msg message.Message) {
	switch m := msg.(type) {
	case message.InitialData:
		if m.Service != nil {
			d.services.UpdateService(*m.Service)
		}
	case message.ServiceUpdate:
		d.services.UpdateService(m.Service)
	case message.HealthCheckResult:
		d.logger.Debug("health check result", "path", path, "result", m.Result)
	case message.Logs:
		d.logger.Debug("logs received", "path", path, "bytes", len(m.Logs))
	case message.Error:
		d.logger.Warn("backend rejected a frame", "path", path, "message", m.Message)
	default:
		d.logger.Debug("unhandled message", "path", path, "type", msg.Kind())
	}
}

// WatchService opens the per-service channel for id. Every message on it is
// applied to the services store once and then passed to each watcher's h,
// which may be nil. Watchers of the same id share one channel.
//
// The returned function removes this watcher; the channel closes when the
// last watcher of id is cancelled. Calling it more than once is a no-op.
func (d *Dashboard) WatchService(id int, h func(message.Message)) (cancel func()) {
	path := ServiceChannel(id)

	d.watchMu.Lock()
	d.nextWatcher++
	key := d.nextWatcher
	if d.watchers[id] == nil {
		d.watchers[id] = make(map[uint64]func(message.Message))
	}
	d.watchers[id][key] = h

	// idempotent while open; reopens a channel the registry gave up on
	d.registry.Connect(path, func(msg message.Message) {
		d.applyServiceDetailMessage(path, msg)
		for _, fn := range d.serviceWatchers(id) {
			fn(msg)
		}
		d.notifyCallbacks(path, msg)
	})
	d.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.watchMu.Lock()
			defer d.watchMu.Unlock()
			delete(d.watchers[id], key)
			if len(d.watchers[id]) == 0 {
				delete(d.watchers, id)
				d.registry.Disconnect(path)
			}
		})
	}
}

// serviceWatchers returns the non-nil handlers watching id.
func (d *Dashboard) serviceWatchers(id int) []func(message.Message) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	fns := make([]func(message.Message), 0, len(d.watchers[id]))
	for _, fn := range d.watchers[id] {
		if fn != nil {
			fns = append(fns, fn)
		}
	}
	return fns
}

// RequestLogs asks the backend for the recent logs of service id. The
// answer arrives as a [message.Logs] on the handler given to
// [Dashboard.WatchService].
func (d *Dashboard) RequestLogs(id int) error {
	h, ok := d.registry.Lookup(ServiceChannel(id))
	if !ok {
		return ErrNotWatching
	}
	return h.Send(message.NewGetLogs())
}

// Ping sends a ping on the services channel; the backend answers with a
// [message.Pong].
func (d *Dashboard) Ping() error {
	h, ok := d.registry.Lookup(ChannelServices)
	if !ok {
		return wsclient.ErrNotConnected
	}
	return h.Send(message.NewPing(time.Now().UnixMilli()))
}

// SubscribeServiceEvents narrows the events channel to the events of one
// service.
func (d *Dashboard) SubscribeServiceEvents(id int) error {
	h, ok := d.registry.Lookup(ChannelEvents)
	if !ok {
		return wsclient.ErrNotConnected
	}
	return h.Send(message.NewSubscribeService(id))
}

// Mode reports [ModeLive] when every configured channel is open and
// [ModePolling] otherwise.
func (d *Dashboard) Mode() Mode {
	if len(d.channels) == 0 {
		return ModePolling
	}
	for _, path := range d.channels {
		if state, ok := d.registry.State(path); !ok || state != wsclient.StateOpen {
			return ModePolling
		}
	}
	return ModeLive
}

// ChannelState returns the state of the channel at path. ok is false when
// the channel is not registered.
func (d *Dashboard) ChannelState(path string) (state wsclient.State, ok bool) {
	return d.registry.State(path)
}

func (d *Dashboard) notifyCallbacks(path string, msg message.Message) {
	for _, cb := range d.messageCallback {
		invokeCallbackSafe(cb, path, msg, d.logger)
	}
}

// invokeCallbackSafe calls a message callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(string, message.Message), path string, msg message.Message, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message callback panicked",
				"panic", r,
				"path", path,
				"type", msg.Kind(),
				"correlation_id", uuid.NewString(),
			)
		}
	}()
	cb(path, msg)
}

// modeObserver forwards registry events to telemetry and announces
// possible mode changes.
type modeObserver struct {
	metrics *telemetry.Metrics
	changes *store.Broadcaster
}

func (o *modeObserver) ConnectionOpened(path string) {
	o.metrics.ConnectionOpened(path)
	o.changes.Publish(store.TopicMode)
}

func (o *modeObserver) ConnectionClosed(path string) {
	o.metrics.ConnectionClosed(path)
	o.changes.Publish(store.TopicMode)
}

func (o *modeObserver) ReconnectScheduled(path string, attempt int, delay time.Duration) {
	o.metrics.ReconnectScheduled(path, attempt, delay)
}

func (o *modeObserver) ConnectionAbandoned(path string) {
	o.metrics.ConnectionAbandoned(path)
	o.changes.Publish(store.TopicMode)
}

func (o *modeObserver) MessageReceived(path string, kind message.Kind) {
	o.metrics.MessageReceived(path, kind)
}

func (o *modeObserver) MessageDropped(path string) {
	o.metrics.MessageDropped(path)
}
