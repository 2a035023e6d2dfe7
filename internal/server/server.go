package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/pulsedeck/internal/session"
	"github.com/jpalmerr/pulsedeck/internal/store"
	"github.com/jpalmerr/pulsedeck/model"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "PulseDeck"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Source is the client state the server mirrors.
//
// Source implementations must be safe for concurrent access. Change
// notifications from every underlying store arrive through the embedded
// [store.Notifier].
type Source interface {
	store.Notifier

	ServicesSnapshot() store.ServicesSnapshot
	EventsSnapshot() store.EventsSnapshot
	MetricsSnapshot() store.MetricsSnapshot
	Session() session.Session
	Mode() string
}

// SessionView is the public form of a session. The token is never exposed.
type SessionView struct {
	User            *model.User   `json:"user"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	IsLoading       bool          `json:"isLoading"`
	Error           *string       `json:"error"`
	State           session.State `json:"state"`
}

// ModeView is the body of /api/mode.
type ModeView struct {
	Mode string `json:"mode"`
}

// Frame is one SSE message: the topic that changed and that topic's current
// snapshot.
type Frame struct {
	Topic store.Topic `json:"topic"`
	At    time.Time   `json:"at"`
	Data  any         `json:"data"`
}

// initialTopics are sent, in order, when an SSE client connects.
var initialTopics = []store.Topic{
	store.TopicSession,
	store.TopicMode,
	store.TopicServices,
	store.TopicEvents,
	store.TopicMetrics,
}

// Server is the local mirror of the client's stores.
//
// Server provides these endpoints:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /api/services, /api/events, /api/metrics: store snapshots as JSON
//   - GET /api/session, /api/mode: session and connection mode
//   - GET /api/sse: Server-Sent Events stream of [Frame]s
//   - GET /metrics: Prometheus exposition (when a gatherer is configured)
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	source     Source
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	now        func() time.Time
}

// NewServer creates a new HTTP [Server].
//
// assets and gatherer may be nil, disabling "/" and "/metrics" respectively.
// The server is not started until [Server.Start] is called.
func NewServer(src Source, port int, assets fs.FS, title string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		source:   src,
		port:     port,
		assets:   assets,
		title:    title,
		gatherer: gatherer,
		logger:   logger,
		now:      time.Now,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/services", s.jsonHandler(func() any { return s.source.ServicesSnapshot() }))
	mux.HandleFunc("/api/events", s.jsonHandler(func() any { return s.source.EventsSnapshot() }))
	mux.HandleFunc("/api/metrics", s.jsonHandler(func() any { return s.source.MetricsSnapshot() }))
	mux.HandleFunc("/api/session", s.jsonHandler(func() any { return s.sessionView() }))
	mux.HandleFunc("/api/mode", s.jsonHandler(func() any { return ModeView{Mode: s.source.Mode()} }))
	mux.HandleFunc("/api/sse", s.handleSSE)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// serve dashboard assets
	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("mirror server listening", "addr", ln.Addr().String())
	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// title is HTML-escaped before substitution
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// jsonHandler serves the value returned by snapshot as JSON.
func (s *Server) jsonHandler(snapshot func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			s.logger.Error("failed to encode response", "path", r.URL.Path, "error", err)
		}
	}
}

func (s *Server) sessionView() SessionView {
	sess := s.source.Session()
	return SessionView{
		User:            sess.User,
		IsAuthenticated: sess.IsAuthenticated,
		IsLoading:       sess.IsLoading,
		Error:           sess.Error,
		State:           sess.State(),
	}
}

// frame builds the SSE frame for topic from the current snapshots.
func (s *Server) frame(topic store.Topic, at time.Time) Frame {
	f := Frame{Topic: topic, At: at}
	switch topic {
	case store.TopicServices, store.TopicStats:
		f.Data = s.source.ServicesSnapshot()
	case store.TopicEvents:
		f.Data = s.source.EventsSnapshot()
	case store.TopicMetrics:
		f.Data = s.source.MetricsSnapshot()
	case store.TopicSession:
		f.Data = s.sessionView()
	case store.TopicMode:
		f.Data = ModeView{Mode: s.source.Mode()}
	}
	return f
}

// handleSSE streams store changes via Server-Sent Events.
//
// Every write carries a deadline so a slow or vanished client cannot block
// the handler past context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true
	clientID := uuid.NewString()

	writeAndFlush := func(f Frame) error {
		data, err := json.Marshal(f)
		if err != nil {
			s.logger.Warn("failed to encode sse frame", "topic", f.Topic, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "client_id", clientID, "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// subscribe before the snapshot so no change is missed in between
	ch := s.source.Subscribe()
	defer s.source.Unsubscribe(ch)

	s.logger.Debug("sse client connected", "client_id", clientID)
	defer s.logger.Debug("sse client disconnected", "client_id", clientID)

	now := s.now()
	for _, topic := range initialTopics {
		if err := writeAndFlush(s.frame(topic, now)); err != nil {
			return
		}
	}

	for {
		select {
		case change, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(s.frame(change.Topic, change.At)); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown (BaseContext)
			return
		}
	}
}
