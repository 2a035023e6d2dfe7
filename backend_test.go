package pulsedeck

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/pulsedeck/model"
)

const (
	testUser     = "admin"
	testPassword = "secret"
	testToken    = "tok-123"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitUntil polls cond until it holds or the timeout passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakeBackend serves the REST API and the WebSocket channels.
type fakeBackend struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	rejectToken atomic.Bool

	// writeMu serializes server-side writes; gorilla allows one writer.
	writeMu sync.Mutex

	mu       sync.Mutex
	hits     map[string]int
	conns    map[string]*websocket.Conn
	received map[string][]string
	services []model.Service
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		hits:     make(map[string]int),
		conns:    make(map[string]*websocket.Conn),
		received: make(map[string][]string),
		services: []model.Service{
			{ID: 1, Name: "api", ServiceType: "docker", Status: model.StatusHealthy},
			{ID: 2, Name: "worker", ServiceType: "docker", Status: model.StatusHealthy},
		},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serveHTTP))
	t.Cleanup(func() {
		b.mu.Lock()
		for _, c := range b.conns {
			_ = c.Close()
		}
		b.mu.Unlock()
		b.srv.Close()
	})
	return b
}

func (b *fakeBackend) apiBase() string { return b.srv.URL }
func (b *fakeBackend) wsBase() string  { return "ws" + strings.TrimPrefix(b.srv.URL, "http") }

func (b *fakeBackend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *fakeBackend) connected(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conns[path] != nil
}

func (b *fakeBackend) receivedOn(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.received[path]...)
}

// push sends a raw frame on the channel at path.
func (b *fakeBackend) push(t *testing.T, path, frame string) {
	t.Helper()
	b.mu.Lock()
	conn := b.conns[path]
	b.mu.Unlock()
	if conn == nil {
		t.Fatalf("no connection on %s", path)
	}
	if err := b.write(conn, frame); err != nil {
		t.Fatalf("push on %s: %v", path, err)
	}
}

func (b *fakeBackend) write(conn *websocket.Conn, frame string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// dropAll closes every socket from the server side.
func (b *fakeBackend) dropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for path, c := range b.conns {
		_ = c.Close()
		delete(b.conns, path)
	}
}

func (b *fakeBackend) authorized(r *http.Request) bool {
	return !b.rejectToken.Load() && r.Header.Get("Authorization") == "Token "+testToken
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	b.mu.Lock()
	b.hits[path]++
	b.mu.Unlock()

	if strings.HasPrefix(path, "/ws/") {
		b.serveWS(w, r)
		return
	}

	if path == "/api/v1/auth/login/" {
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Username != testUser || creds.Password != testPassword {
			writeJSON(w, http.StatusBadRequest, map[string]any{"non_field_errors": []string{"bad"}, "detail": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": testToken,
			"user":  model.User{ID: 1, Username: testUser},
		})
		return
	}

	if !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
		return
	}

	switch path {
	case "/api/v1/auth/user/":
		writeJSON(w, http.StatusOK, model.User{ID: 1, Username: testUser})
	case "/api/v1/auth/logout/":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v1/services/":
		b.mu.Lock()
		services := append([]model.Service(nil), b.services...)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"count": len(services), "results": services})
	case "/api/v1/services/stats/":
		writeJSON(w, http.StatusOK, model.ServiceStats{TotalServices: 2, HealthyServices: 2})
	case "/api/v1/services/discover_services/":
		b.mu.Lock()
		b.services = append(b.services, model.Service{ID: 3, Name: "cache", Status: model.StatusUnknown})
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"discovered_count": 1})
	case "/api/v1/services/1/start_container/", "/api/v1/services/1/stop_container/":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "done"})
	case "/api/v1/events/":
		writeJSON(w, http.StatusOK, []model.Event{{ID: 10, Title: "boot", Severity: model.SeverityInfo}})
	case "/api/v1/alerts/":
		writeJSON(w, http.StatusOK, []model.Alert{})
	case "/api/v1/monitoring/server_metrics/":
		writeJSON(w, http.StatusOK, []model.ServerMetrics{{Timestamp: time.Now(), CPUPercent: 12}})
	case "/api/v1/monitoring/docker_metrics/":
		writeJSON(w, http.StatusOK, []model.DockerMetrics{{ContainerID: "c1", Timestamp: time.Now()}})
	case "/api/v1/monitoring/summary/":
		writeJSON(w, http.StatusOK, model.MetricsSummary{TotalContainers: 2})
	case "/api/v1/monitoring/live/":
		writeJSON(w, http.StatusOK, model.LiveMetrics{Timestamp: time.Now()})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
}

func (b *fakeBackend) serveWS(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	path := r.URL.Path

	b.mu.Lock()
	b.conns[path] = conn
	b.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.received[path] = append(b.received[path], string(data))
		b.mu.Unlock()

		var req struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &req)
		switch req.Type {
		case "get_logs":
			_ = b.write(conn, `{"type":"logs","logs":["line 1","line 2"]}`)
		case "ping":
			_ = b.write(conn, `{"type":"pong"}`)
		}
	}
}

// newTestDashboard creates a dashboard wired to b.
func newTestDashboard(t *testing.T, b *fakeBackend, opts ...Option) *Dashboard {
	t.Helper()
	base := []Option{
		WithAPIBase(b.apiBase()),
		WithWSBase(b.wsBase()),
		WithLogger(testLogger()),
	}
	d, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}
