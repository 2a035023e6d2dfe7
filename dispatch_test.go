package pulsedeck

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/pulsedeck/internal/wsclient"
	"github.com/jpalmerr/pulsedeck/message"
	"github.com/jpalmerr/pulsedeck/model"
)

// fastScheduler records requested delays and fires after a few milliseconds.
type fastScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *fastScheduler) AfterFunc(d time.Duration, f func()) wsclient.Timer {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return time.AfterFunc(10*time.Millisecond, f)
}

func (s *fastScheduler) requested() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func serviceStatus(d *Dashboard, id int) model.ServiceStatus {
	for _, s := range d.Services() {
		if s.ID == id {
			return s.Status
		}
	}
	return ""
}

func TestDispatch_ServiceUpdate(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	b.push(t, ChannelServices, `{"type":"service_update","service":{"id":1,"name":"api","service_type":"docker","status":"unhealthy"}}`)
	waitUntil(t, 2*time.Second, func() bool { return serviceStatus(d, 1) == model.StatusUnhealthy }, "service 1 unhealthy")

	if got := serviceStatus(d, 2); got != model.StatusHealthy {
		t.Errorf("service 2 status = %s, want healthy", got)
	}
}

func TestDispatch_ServiceUpdateNeverInserts(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	b.push(t, ChannelServices, `{"type":"service_update","service":{"id":77,"name":"ghost","status":"healthy"}}`)
	// a later frame on the same socket proves the first was processed
	b.push(t, ChannelServices, `{"type":"service_update","service":{"id":2,"name":"worker","status":"maintenance"}}`)
	waitUntil(t, 2*time.Second, func() bool { return serviceStatus(d, 2) == model.StatusMaintenance }, "service 2 updated")

	if got := len(d.Services()); got != 2 {
		t.Errorf("len(Services()) = %d, want 2", got)
	}
	if serviceStatus(d, 77) != "" {
		t.Error("update for an unknown service should not insert it")
	}
}

func TestDispatch_InitialDataReplacesServices(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	b.push(t, ChannelServices, `{"type":"initial_data","services":[{"id":5,"name":"db","status":"healthy"}]}`)
	waitUntil(t, 2*time.Second, func() bool { return serviceStatus(d, 5) == model.StatusHealthy }, "initial data applied")

	if got := len(d.Services()); got != 1 {
		t.Errorf("len(Services()) = %d, want 1", got)
	}
}

func TestDispatch_NewEventPrepended(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	b.push(t, ChannelEvents, `{"type":"new_event","event":{"id":11,"title":"restart","severity":"warning"}}`)
	waitUntil(t, 2*time.Second, func() bool { return len(d.Events()) == 2 }, "event added")

	evs := d.Events()
	if evs[0].ID != 11 || evs[1].ID != 10 {
		t.Errorf("event order = [%d %d], want [11 10]", evs[0].ID, evs[1].ID)
	}
}

func TestDispatch_Monitoring(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	b.push(t, ChannelMonitoring, `{"type":"metrics_update","metrics":{"timestamp":"2026-01-02T03:04:05Z","cpu_percent":88.5}}`)
	waitUntil(t, 2*time.Second, func() bool {
		latest := d.MetricsSnapshot().Latest
		return latest != nil && latest.CPUPercent == 88.5
	}, "metrics sample appended")

	b.push(t, ChannelMonitoring, `{"type":"container_update","containers":[{"id":"c1","name":"api"},{"id":"c2","name":"worker"}]}`)
	waitUntil(t, 2*time.Second, func() bool { return len(d.MetricsSnapshot().Containers) == 2 }, "containers replaced")
}

func TestDispatch_AlertsChannel(t *testing.T) {
	b := newFakeBackend(t)

	var mu sync.Mutex
	var got []message.Message
	d, _ := startDashboard(t, b,
		WithChannels(ChannelServices, ChannelEvents, ChannelAlerts),
		WithMessageCallback(func(path string, msg message.Message) {
			if path != ChannelAlerts {
				return
			}
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		}),
	)
	waitUntil(t, 2*time.Second, func() bool { return b.connected(ChannelAlerts) }, "alerts channel connected")

	b.push(t, ChannelAlerts, `{"type":"new_alert","alert":{"id":4,"service_name":"api","title":"CPU high","status":"active"}}`)
	b.push(t, ChannelAlerts, `{"type":"alert_resolved","alert_id":4}`)
	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "alert frames delivered")

	mu.Lock()
	alert, isAlert := got[0].(message.NewAlert)
	resolved, isResolved := got[1].(message.AlertResolved)
	mu.Unlock()
	if !isAlert || alert.Alert.Title != "CPU high" {
		t.Errorf("first frame = %#v, want new_alert", got[0])
	}
	if !isResolved || resolved.AlertID != 4 {
		t.Errorf("second frame = %#v, want alert_resolved 4", got[1])
	}
	if n := len(d.Events()); n != 1 {
		t.Errorf("alerts should not touch the event list, len(Events()) = %d", n)
	}
}

func TestDispatch_UnknownFrameKeepsChannelOpen(t *testing.T) {
	b := newFakeBackend(t)

	var mu sync.Mutex
	var got []message.Message
	d, _ := startDashboard(t, b, WithMessageCallback(func(_ string, msg message.Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}))

	b.push(t, ChannelEvents, `not json`)
	b.push(t, ChannelEvents, `{"type":"brand_new_kind"}`)
	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "unknown frame delivered")

	mu.Lock()
	_, isUnknown := got[0].(message.Unknown)
	mu.Unlock()
	if !isUnknown {
		t.Errorf("got %T, want message.Unknown", got[0])
	}
	if d.Mode() != ModeLive {
		t.Error("bad frames should not close the channel")
	}
}

func TestMode_ReconnectsAfterDrop(t *testing.T) {
	b := newFakeBackend(t)
	sched := &fastScheduler{}
	d, _ := startDashboard(t, b, WithReconnectScheduler(sched))

	changes := d.Subscribe()
	defer d.Unsubscribe(changes)

	b.dropAll()
	waitUntil(t, 2*time.Second, func() bool { return len(sched.requested()) == len(DefaultChannels) }, "reconnects scheduled")
	waitUntil(t, 3*time.Second, func() bool { return d.Mode() == ModeLive }, "channels reopened")

	for _, delay := range sched.requested() {
		if delay != time.Second {
			t.Errorf("first reconnect delay = %v, want 1s", delay)
		}
	}

	sawMode := false
	for !sawMode {
		select {
		case c := <-changes:
			sawMode = c.Topic == "mode"
		case <-time.After(time.Second):
			t.Fatal("no mode change published")
		}
	}
}

func TestMode_PollingWithoutChannels(t *testing.T) {
	b := newFakeBackend(t)
	d := newTestDashboard(t, b)

	if d.Mode() != ModePolling {
		t.Errorf("Mode() = %v, want polling", d.Mode())
	}
	if _, ok := d.ChannelState(ChannelServices); ok {
		t.Error("no channel should be registered before Start")
	}
}

func TestWatchService_RequestLogs(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	logs := make(chan message.Logs, 1)
	cancel := d.WatchService(1, func(msg message.Message) {
		if m, ok := msg.(message.Logs); ok {
			logs <- m
		}
	})
	defer cancel()

	path := ServiceChannel(1)
	waitUntil(t, 2*time.Second, func() bool {
		state, ok := d.ChannelState(path)
		return ok && state == wsclient.StateOpen
	}, "service channel open")

	if err := d.RequestLogs(1); err != nil {
		t.Fatalf("RequestLogs() error = %v", err)
	}

	select {
	case m := <-logs:
		if !strings.Contains(string(m.Logs), "line 1") {
			t.Errorf("logs = %s, want line 1", m.Logs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no logs received")
	}

	cancel()
	if _, ok := d.ChannelState(path); ok {
		t.Error("cancel should close the service channel")
	}
}

func TestWatchService_SharedChannel(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	var first, second atomic.Int32
	cancelFirst := d.WatchService(1, func(message.Message) { first.Add(1) })
	defer cancelFirst()
	cancelSecond := d.WatchService(1, func(message.Message) { second.Add(1) })

	path := ServiceChannel(1)
	waitUntil(t, 2*time.Second, func() bool { return b.connected(path) }, "service channel connected")

	b.push(t, path, `{"type":"health_check_result","result":{"ok":true}}`)
	waitUntil(t, 2*time.Second, func() bool { return first.Load() == 1 && second.Load() == 1 }, "both watchers notified")

	// cancelling one watcher keeps the channel for the other
	cancelSecond()
	cancelSecond()
	if state, ok := d.ChannelState(path); !ok || state != wsclient.StateOpen {
		t.Fatalf("ChannelState() = %v, %v, want open", state, ok)
	}

	b.push(t, path, `{"type":"health_check_result","result":{"ok":false}}`)
	waitUntil(t, 2*time.Second, func() bool { return first.Load() == 2 }, "remaining watcher notified")
	if got := second.Load(); got != 1 {
		t.Errorf("cancelled watcher called %d times, want 1", got)
	}

	cancelFirst()
	if _, ok := d.ChannelState(path); ok {
		t.Error("cancelling the last watcher should close the channel")
	}
}

func TestWatchService_ServiceUpdateReachesStore(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	cancel := d.WatchService(2, nil)
	defer cancel()

	path := ServiceChannel(2)
	waitUntil(t, 2*time.Second, func() bool { return b.connected(path) }, "service channel connected")

	b.push(t, path, `{"type":"service_update","service":{"id":2,"name":"worker","status":"unhealthy"}}`)
	waitUntil(t, 2*time.Second, func() bool { return serviceStatus(d, 2) == model.StatusUnhealthy }, "service 2 updated")
}

func TestRequestLogs_NotWatching(t *testing.T) {
	b := newFakeBackend(t)
	d := newTestDashboard(t, b)

	if err := d.RequestLogs(9); !errors.Is(err, ErrNotWatching) {
		t.Errorf("RequestLogs() error = %v, want ErrNotWatching", err)
	}
	if _, ok := d.ChannelState(ServiceChannel(9)); ok {
		t.Error("RequestLogs should not open a channel")
	}
}

func TestPing(t *testing.T) {
	b := newFakeBackend(t)

	pongs := make(chan struct{}, 1)
	d, _ := startDashboard(t, b, WithMessageCallback(func(path string, msg message.Message) {
		if msg.Kind() == message.KindPong && path == ChannelServices {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}))

	if err := d.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	select {
	case <-pongs:
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}

	frames := b.receivedOn(ChannelServices)
	if len(frames) != 1 || !strings.Contains(frames[0], `"type":"ping"`) {
		t.Errorf("frames = %v, want one ping", frames)
	}
}

func TestPing_NotConnected(t *testing.T) {
	b := newFakeBackend(t)
	d := newTestDashboard(t, b)

	if err := d.Ping(); !errors.Is(err, wsclient.ErrNotConnected) {
		t.Errorf("Ping() error = %v, want ErrNotConnected", err)
	}
	if err := d.SubscribeServiceEvents(1); !errors.Is(err, wsclient.ErrNotConnected) {
		t.Errorf("SubscribeServiceEvents() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeServiceEvents(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)

	if err := d.SubscribeServiceEvents(2); err != nil {
		t.Fatalf("SubscribeServiceEvents() error = %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return len(b.receivedOn(ChannelEvents)) == 1 }, "subscribe frame received")

	frame := b.receivedOn(ChannelEvents)[0]
	if !strings.Contains(frame, `"type":"subscribe_service"`) || !strings.Contains(frame, `"service_id":2`) {
		t.Errorf("frame = %s", frame)
	}
}

func TestServiceChannel(t *testing.T) {
	if got := ServiceChannel(12); got != "/ws/services/12/" {
		t.Errorf("ServiceChannel(12) = %q", got)
	}
}
