package pulsedeck

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/pulsedeck/internal/api"
	"github.com/jpalmerr/pulsedeck/internal/storage"
)

func loggedIn(t *testing.T, b *fakeBackend, opts ...Option) *Dashboard {
	t.Helper()
	d := newTestDashboard(t, b, opts...)
	if err := d.Login(context.Background(), testUser, testPassword); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return d
}

func TestRefresh_FillsStores(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b)

	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	services := d.ServicesSnapshot()
	if len(services.Services) != 2 {
		t.Errorf("len(services) = %d, want 2", len(services.Services))
	}
	if services.Stats == nil || services.Stats.TotalServices != 2 {
		t.Errorf("stats = %+v, want 2 services", services.Stats)
	}
	if services.Loading {
		t.Error("services should not be loading after Refresh")
	}
	if len(d.Events()) != 1 {
		t.Errorf("len(Events()) = %d, want 1", len(d.Events()))
	}
	metrics := d.MetricsSnapshot()
	if len(metrics.Docker["c1"]) != 1 {
		t.Errorf("docker samples for c1 = %d, want 1", len(metrics.Docker["c1"]))
	}
	if metrics.Live == nil {
		t.Error("live metrics should be set")
	}

	for _, name := range queryOrder {
		if strings.Contains(name, "/") {
			t.Errorf("query name %q should not be a path", name)
		}
	}
}

func TestRefresh_RequestsMetricsWindow(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b, WithMetricsHours(6))

	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if b.hitCount("/api/v1/monitoring/server_metrics/") != 1 {
		t.Error("server metrics should be fetched once")
	}
}

func TestInvalidate_UnknownQuery(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b)

	err := d.Invalidate(context.Background(), QueryServices, "nope")
	if err == nil || !strings.Contains(err.Error(), `unknown query "nope"`) {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if got := b.hitCount("/api/v1/services/"); got != 0 {
		t.Errorf("services fetched %d times, want 0 when a query is unknown", got)
	}
}

func TestInvalidate_FetchesInlineWhenStopped(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b)

	if err := d.Invalidate(context.Background(), QueryEvents); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if got := b.hitCount("/api/v1/events/"); got != 1 {
		t.Errorf("events fetched %d times, want 1", got)
	}
	if got := b.hitCount("/api/v1/services/"); got != 0 {
		t.Errorf("services fetched %d times, want 0", got)
	}
}

func TestDiscoverServices_RefetchesList(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b)

	res, err := d.DiscoverServices(context.Background())
	if err != nil {
		t.Fatalf("DiscoverServices() error = %v", err)
	}
	if res.DiscoveredCount != 1 {
		t.Errorf("DiscoveredCount = %d, want 1", res.DiscoveredCount)
	}
	if got := b.hitCount("/api/v1/services/"); got != 1 {
		t.Errorf("services fetched %d times after discovery, want 1", got)
	}
	if got := b.hitCount("/api/v1/services/stats/"); got != 1 {
		t.Errorf("stats fetched %d times after discovery, want 1", got)
	}
	if got := len(d.Services()); got != 3 {
		t.Errorf("len(Services()) = %d, want 3", got)
	}
}

func TestDiscoverServices_TriggersSchedulerWhileRunning(t *testing.T) {
	b := newFakeBackend(t)
	d, _ := startDashboard(t, b)
	before := b.hitCount("/api/v1/services/")

	if _, err := d.DiscoverServices(context.Background()); err != nil {
		t.Fatalf("DiscoverServices() error = %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return len(d.Services()) == 3 }, "refetch after discovery")

	if got := b.hitCount("/api/v1/services/"); got <= before {
		t.Errorf("services hits = %d, want more than %d", got, before)
	}
}

func TestStartStopContainer(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b)

	res, err := d.StartContainer(context.Background(), 1)
	if err != nil {
		t.Fatalf("StartContainer() error = %v", err)
	}
	if res.Status != "ok" {
		t.Errorf("Status = %q, want ok", res.Status)
	}
	if _, err := d.StopContainer(context.Background(), 1); err != nil {
		t.Fatalf("StopContainer() error = %v", err)
	}
	if got := b.hitCount("/api/v1/services/"); got != 2 {
		t.Errorf("services fetched %d times, want one per mutation", got)
	}
}

func TestMutation_FailureSkipsRefetch(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b)

	_, err := d.StartContainer(context.Background(), 42)
	if err == nil {
		t.Fatal("StartContainer() on a missing service should fail")
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Errorf("error = %v, want 404 api error", err)
	}
	if got := b.hitCount("/api/v1/services/"); got != 0 {
		t.Errorf("services fetched %d times after a failed mutation", got)
	}
}

func TestUnauthorized_ClearsSession(t *testing.T) {
	b := newFakeBackend(t)

	var called atomic.Int32
	st := storage.NewMemoryStorage()
	d := loggedIn(t, b, WithStorage(st), WithUnauthorizedHandler(func() { called.Add(1) }))

	b.rejectToken.Store(true)
	err := d.Invalidate(context.Background(), QueryServices)
	if err == nil {
		t.Fatal("Invalidate() should fail with a rejected token")
	}

	s := d.Session()
	if s.IsAuthenticated || s.User != nil || s.Token != nil {
		t.Errorf("session = %+v, want cleared", s)
	}
	if called.Load() != 1 {
		t.Errorf("unauthorized handler called %d times, want 1", called.Load())
	}
	if tok, _ := storage.GetOptional(st, storage.KeyAuthToken); tok != "" {
		t.Errorf("persisted token = %q, want removed", tok)
	}
	snap := d.ServicesSnapshot()
	if snap.Error == nil || *snap.Error != "Invalid token." {
		t.Errorf("services error = %v, want server detail", snap.Error)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	b := newFakeBackend(t)
	d := newTestDashboard(t, b)

	var called atomic.Int32
	d.onUnauthorized = func() { called.Add(1) }

	err := d.Login(context.Background(), testUser, "wrong")
	if err == nil {
		t.Fatal("Login() should fail")
	}
	s := d.Session()
	if s.IsAuthenticated || s.IsLoading {
		t.Errorf("session = %+v, want not authenticated and not loading", s)
	}
	if s.Error == nil || *s.Error != "Invalid credentials" {
		t.Errorf("session error = %v, want server detail", s.Error)
	}
	if called.Load() != 0 {
		t.Error("a failed login is not an expired session")
	}

	d.ClearError()
	if d.Session().Error != nil {
		t.Error("ClearError should clear the retained error")
	}
}

func TestLogout(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b)

	if user, ok := d.CachedUser(); !ok || user.Username != testUser {
		t.Errorf("CachedUser() = %+v, %v", user, ok)
	}

	if err := d.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if b.hitCount("/api/v1/auth/logout/") != 1 {
		t.Error("logout should be sent to the backend")
	}
	if d.Session().IsAuthenticated {
		t.Error("session should be cleared")
	}
	if err := d.Start(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Start() after logout error = %v, want ErrNotAuthenticated", err)
	}
}

func TestAlerts(t *testing.T) {
	b := newFakeBackend(t)
	d := loggedIn(t, b)

	alerts, err := d.Alerts(context.Background())
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("len(alerts) = %d, want 0", len(alerts))
	}
}
