// Package mockbackend runs a fake monitoring backend for the demos.
//
// It serves the REST API under /api/v1 and the WebSocket channels under
// /ws, with a handful of services whose status changes every 20-60 seconds.
// Sign in with admin / admin.
package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jpalmerr/pulsedeck/model"
)

const (
	Username = "admin"
	Password = "admin"

	maxEvents = 50
)

// conn is one accepted socket. gorilla allows a single writer at a time.
type conn struct {
	ws   *websocket.Conn
	path string
	mu   sync.Mutex
}

func (c *conn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(v)
}

// Backend holds the fake state.
type Backend struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	tokens      map[string]bool
	services    []model.Service
	nextChange  map[int]time.Time
	events      []model.Event
	nextEventID int
	alerts      []model.Alert
	nextAlertID int
	openAlerts  map[int]int // service id -> alert id
	conns       map[*conn]struct{}
}

// New creates a backend with four docker services, all healthy.
func New(logger *slog.Logger) *Backend {
	now := time.Now()
	b := &Backend{
		logger:     logger,
		tokens:     make(map[string]bool),
		nextChange: make(map[int]time.Time),
		openAlerts: make(map[int]int),
		conns:      make(map[*conn]struct{}),
	}
	for i, name := range []string{"users", "orders", "payments", "search"} {
		id := i + 1
		b.services = append(b.services, model.Service{
			ID:            id,
			Name:          name,
			ServiceType:   "docker",
			Status:        model.StatusHealthy,
			ContainerName: name + "-1",
			LastChecked:   &now,
			IsHealthy:     true,
		})
		b.nextChange[id] = now.Add(randomDelay())
	}
	return b
}

func randomDelay() time.Duration {
	return time.Duration(20+rand.Intn(41)) * time.Second
}

// Run serves on addr until ctx is cancelled.
func (b *Backend) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go b.simulate(ctx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		b.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Handler returns the REST and WebSocket routes.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/login/{$}", b.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout/{$}", b.authed(b.handleLogout))
	mux.HandleFunc("GET /api/v1/auth/user/{$}", b.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.User{ID: 1, Username: Username, Email: "admin@example.com", IsSuperuser: true})
	}))

	mux.HandleFunc("GET /api/v1/services/{$}", b.authed(b.handleServices))
	mux.HandleFunc("GET /api/v1/services/stats/{$}", b.authed(b.handleStats))
	mux.HandleFunc("POST /api/v1/services/discover_services/{$}", b.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"discovered_count": 0})
	}))
	mux.HandleFunc("POST /api/v1/services/{id}/{action}/{$}", b.authed(b.handleAction))

	mux.HandleFunc("GET /api/v1/events/{$}", b.authed(b.handleEvents))
	mux.HandleFunc("GET /api/v1/alerts/{$}", b.authed(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		alerts := append([]model.Alert(nil), b.alerts...)
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, alerts)
	}))

	mux.HandleFunc("GET /api/v1/monitoring/server_metrics/{$}", b.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.ServerMetrics{serverSample()})
	}))
	mux.HandleFunc("GET /api/v1/monitoring/docker_metrics/{$}", b.authed(b.handleDockerMetrics))
	mux.HandleFunc("GET /api/v1/monitoring/summary/{$}", b.authed(b.handleSummary))
	mux.HandleFunc("GET /api/v1/monitoring/live/{$}", b.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.LiveMetrics{Server: serverSample(), Timestamp: time.Now()})
	}))

	mux.HandleFunc("/ws/", b.authed(b.handleWS))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// authed rejects requests without a token issued by handleLogin.
func (b *Backend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		b.mu.Lock()
		ok := len(token) > 6 && b.tokens[token[6:]]
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
			return
		}
		next(w, r)
	}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}
	if creds.Username != Username || creds.Password != Password {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Invalid credentials", "non_field_errors": []string{"Unable to log in with provided credentials."}})
		return
	}

	token := uuid.NewString()
	b.mu.Lock()
	b.tokens[token] = true
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  model.User{ID: 1, Username: Username, Email: "admin@example.com", IsSuperuser: true},
	})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	delete(b.tokens, r.Header.Get("Authorization")[6:])
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleServices(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	services := append([]model.Service(nil), b.services...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(services), "results": services})
}

func (b *Backend) handleStats(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats := model.ServiceStats{TotalServices: len(b.services), ServiceTypes: map[string]int{}}
	for _, s := range b.services {
		stats.ServiceTypes[s.ServiceType]++
		switch s.Status {
		case model.StatusHealthy:
			stats.HealthyServices++
		case model.StatusUnhealthy:
			stats.UnhealthyServices++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (b *Backend) handleAction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || b.service(id) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}

	switch r.PathValue("action") {
	case "start_container":
		b.setStatus(id, model.StatusHealthy)
		writeJSON(w, http.StatusOK, map[string]string{"status": "started", "message": "Container started"})
	case "stop_container":
		b.setStatus(id, model.StatusUnhealthy)
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "message": "Container stopped"})
	case "check_health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Health check queued"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
}

func (b *Backend) handleEvents(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	events := append([]model.Event(nil), b.events...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, events)
}

func (b *Backend) handleDockerMetrics(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	services := append([]model.Service(nil), b.services...)
	b.mu.Unlock()

	now := time.Now()
	metrics := make([]model.DockerMetrics, 0, len(services))
	for _, s := range services {
		metrics = append(metrics, model.DockerMetrics{
			ContainerID:   fmt.Sprintf("c%d", s.ID),
			ContainerName: s.ContainerName,
			Timestamp:     now,
			CPUPercent:    rand.Float64() * 40,
			MemoryUsageMB: 100 + rand.Float64()*400,
			MemoryLimitMB: 1024,
		})
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (b *Backend) handleSummary(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sample := serverSample()
	summary := model.MetricsSummary{
		CurrentCPU:      sample.CPUPercent,
		CurrentMemory:   sample.MemoryPercent,
		CurrentDisk:     sample.DiskPercent,
		CurrentLoad:     sample.LoadAverage1m,
		TotalContainers: len(b.services),
	}
	for _, s := range b.services {
		if s.Status == model.StatusHealthy {
			summary.RunningContainers++
			summary.HealthyContainers++
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

func serverSample() model.ServerMetrics {
	return model.ServerMetrics{
		Timestamp:     time.Now(),
		CPUPercent:    10 + rand.Float64()*50,
		MemoryPercent: 40 + rand.Float64()*20,
		MemoryTotalMB: 16384,
		DiskPercent:   61,
		DiskTotalGB:   512,
		LoadAverage1m: rand.Float64() * 2,
	}
}

func (b *Backend) service(id int) *model.Service {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.services {
		if b.services[i].ID == id {
			s := b.services[i]
			return &s
		}
	}
	return nil
}

// handleWS accepts a channel, sends its initial snapshot and answers
// client requests until the socket closes.
func (b *Backend) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("upgrade failed", "path", r.URL.Path, "error", err)
		return
	}
	c := &conn{ws: ws, path: r.URL.Path}

	b.mu.Lock()
	b.conns[c] = struct{}{}
	services := append([]model.Service(nil), b.services...)
	b.mu.Unlock()
	b.logger.Info("channel opened", "path", c.path)

	defer func() {
		b.mu.Lock()
		delete(b.conns, c)
		b.mu.Unlock()
		_ = ws.Close()
		b.logger.Info("channel closed", "path", c.path)
	}()

	var serviceID int
	switch {
	case c.path == "/ws/services/":
		_ = c.send(map[string]any{"type": "initial_data", "services": services})
	case c.path == "/ws/events/" || c.path == "/ws/monitoring/" || c.path == "/ws/alerts/":
	default:
		if _, err := fmt.Sscanf(c.path, "/ws/services/%d/", &serviceID); err != nil || b.service(serviceID) == nil {
			_ = c.send(map[string]string{"type": "error", "message": "unknown channel"})
			return
		}
		_ = c.send(map[string]any{"type": "initial_data", "service": b.service(serviceID)})
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Type      string `json:"type"`
			ServiceID int    `json:"service_id"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			_ = c.send(map[string]string{"type": "error", "message": "invalid JSON"})
			continue
		}
		switch req.Type {
		case "ping":
			_ = c.send(map[string]any{"type": "pong", "timestamp": time.Now().Unix()})
		case "get_logs":
			s := b.service(serviceID)
			if s == nil {
				continue
			}
			_ = c.send(map[string]any{"type": "logs", "logs": []string{
				fmt.Sprintf("%s starting", s.Name),
				fmt.Sprintf("%s listening on :8080", s.Name),
				fmt.Sprintf("%s status %s", s.Name, s.Status),
			}})
		case "subscribe_service":
			b.logger.Info("service subscription", "path", c.path, "service_id", req.ServiceID)
		default:
			_ = c.send(map[string]string{"type": "error", "message": "unknown request type " + req.Type})
		}
	}
}

// broadcast sends v to every socket on path, plus per-service sockets for
// serviceID when it is non-zero.
func (b *Backend) broadcast(path string, serviceID int, v any) {
	perService := ""
	if serviceID != 0 {
		perService = fmt.Sprintf("/ws/services/%d/", serviceID)
	}

	b.mu.Lock()
	var targets []*conn
	for c := range b.conns {
		if c.path == path || (perService != "" && c.path == perService) {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		if err := c.send(v); err != nil {
			b.logger.Debug("push failed", "path", c.path, "error", err)
		}
	}
}

func (b *Backend) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		_ = c.ws.Close()
	}
}

// simulate flips service statuses when due and pushes host metrics.
func (b *Backend) simulate(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.broadcast("/ws/monitoring/", 0, map[string]any{"type": "metrics_update", "metrics": serverSample()})

			var due []int
			b.mu.Lock()
			for id, at := range b.nextChange {
				if now.After(at) {
					due = append(due, id)
					b.nextChange[id] = now.Add(randomDelay())
				}
			}
			b.mu.Unlock()

			for _, id := range due {
				next := model.StatusUnhealthy
				if s := b.service(id); s != nil && s.Status != model.StatusHealthy {
					next = model.StatusHealthy
				}
				b.setStatus(id, next)
			}
		}
	}
}

// setStatus changes a service's status and pushes the change, the updated
// service and an event.
func (b *Backend) setStatus(id int, status model.ServiceStatus) {
	now := time.Now()

	b.mu.Lock()
	var (
		updated model.Service
		old     model.ServiceStatus
		found   bool
	)
	for i := range b.services {
		if b.services[i].ID == id {
			old = b.services[i].Status
			b.services[i].Status = status
			b.services[i].IsHealthy = status == model.StatusHealthy
			b.services[i].LastChecked = &now
			updated, found = b.services[i], true
			break
		}
	}
	if !found || old == status {
		b.mu.Unlock()
		return
	}

	severity := model.SeverityInfo
	if status == model.StatusUnhealthy {
		severity = model.SeverityError
	}
	b.nextEventID++
	event := model.Event{
		ID:          b.nextEventID,
		ServiceID:   id,
		ServiceName: updated.Name,
		EventType:   "status_change",
		Severity:    severity,
		Title:       fmt.Sprintf("%s is %s", updated.Name, status),
		Message:     fmt.Sprintf("%s changed from %s to %s", updated.Name, old, status),
		Timestamp:   now,
	}
	b.events = append([]model.Event{event}, b.events...)
	if len(b.events) > maxEvents {
		b.events = b.events[:maxEvents]
	}

	// an unhealthy service opens an alert; recovering resolves it
	var alertFrame map[string]any
	if status == model.StatusUnhealthy {
		b.nextAlertID++
		alert := model.Alert{
			ID:            b.nextAlertID,
			AlertRuleName: "service down",
			Service:       id,
			ServiceName:   updated.Name,
			Status:        "active",
			Severity:      model.SeverityCritical,
			Title:         fmt.Sprintf("%s is down", updated.Name),
			Message:       event.Message,
			TriggeredAt:   now,
		}
		b.alerts = append([]model.Alert{alert}, b.alerts...)
		b.openAlerts[id] = alert.ID
		alertFrame = map[string]any{"type": "new_alert", "alert": alert}
	} else if alertID, ok := b.openAlerts[id]; ok {
		delete(b.openAlerts, id)
		for i := range b.alerts {
			if b.alerts[i].ID == alertID {
				b.alerts[i].Status = "resolved"
			}
		}
		alertFrame = map[string]any{"type": "alert_resolved", "alert_id": alertID}
	}
	b.mu.Unlock()

	b.logger.Info("status change", "service", updated.Name, "from", old, "to", status)

	b.broadcast("/ws/services/", id, map[string]any{
		"type":       "status_change",
		"service_id": id,
		"old_status": old,
		"new_status": status,
		"timestamp":  now.Format(time.RFC3339),
	})
	b.broadcast("/ws/services/", id, map[string]any{"type": "service_update", "service": updated})
	b.broadcast("/ws/events/", 0, map[string]any{"type": "new_event", "event": event})
	if alertFrame != nil {
		b.broadcast("/ws/alerts/", 0, alertFrame)
	}
}
