package wsclient

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsedeck/message"
)

// DefaultMaxAttempts is the number of reconnects tried before a connection
// is abandoned.
const DefaultMaxAttempts = 5

// ErrNotConnected is returned by [Handle.Send] when the socket is not open.
var ErrNotConnected = errors.New("websocket not connected")

// State is the lifecycle state of a logical connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateRetrying
	StateAbandoned
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetrying:
		return "retrying"
	case StateAbandoned:
		return "abandoned"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler consumes decoded messages for one path.
type Handler func(message.Message)

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) RegistryOption {
	return func(r *Registry) {
		if d != nil {
			r.dialer = d
		}
	}
}

// WithScheduler replaces the wall-clock scheduler used for reconnect delays.
func WithScheduler(s Scheduler) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.scheduler = s
		}
	}
}

// WithMaxAttempts sets how many reconnects are tried before giving up.
func WithMaxAttempts(n int) RegistryOption {
	return func(r *Registry) {
		if n >= 0 {
			r.maxAttempts = n
		}
	}
}

// WithLogger sets the registry's logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver registers lifecycle hooks.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// Registry holds the client's logical connections, keyed by path.
type Registry struct {
	baseURL     string
	dialer      Dialer
	scheduler   Scheduler
	maxAttempts int
	logger      *slog.Logger
	observer    Observer

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is one logical connection. Fields other than path, handler and
// handle are guarded by Registry.mu.
type entry struct {
	path    string
	handler Handler
	handle  *Handle

	state    State
	attempts int
	conn     Conn
	timer    Timer
	ctx      context.Context
	cancel   context.CancelFunc

	writeMu sync.Mutex
}

// NewRegistry creates a registry dialing baseURL+path (baseURL is e.g.
// "ws://localhost:8000").
func NewRegistry(baseURL string, opts ...RegistryOption) *Registry {
	r := &Registry{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		dialer:      NewWebsocketDialer(nil),
		scheduler:   realScheduler{},
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		observer:    NopObserver{},
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect returns the logical connection for path, creating and dialling
// it if none exists. While a connection for path is connecting, open or
// waiting to retry, Connect returns it unchanged and h is ignored.
//
// Connect never blocks on the network.
func (r *Registry) Connect(path string, h Handler) *Handle {
	r.mu.Lock()
	if e, ok := r.entries[path]; ok {
		r.mu.Unlock()
		return e.handle
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		path:    path,
		handler: h,
		state:   StateConnecting,
		ctx:     ctx,
		cancel:  cancel,
	}
	e.handle = &Handle{r: r, e: e}
	r.entries[path] = e
	r.mu.Unlock()

	r.logger.Debug("websocket connecting", "path", path)
	go r.dial(e)
	return e.handle
}

// Disconnect closes the connection for path, cancels any pending reconnect
// and forgets its attempt count. Unknown paths are ignored.
func (r *Registry) Disconnect(path string) {
	r.mu.Lock()
	e, ok := r.entries[path]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, path)
	e.state = StateClosed
	conn, timer := e.conn, e.timer
	e.conn, e.timer = nil, nil
	r.mu.Unlock()

	e.cancel()
	if timer != nil {
		timer.Stop()
	}
	if conn != nil {
		_ = conn.Close()
		r.observer.ConnectionClosed(path)
	}
	r.logger.Debug("websocket disconnected", "path", path)
}

// DisconnectAll disconnects every path.
func (r *Registry) DisconnectAll() {
	for _, path := range r.Paths() {
		r.Disconnect(path)
	}
}

// State returns the state of the connection for path. ok is false when the
// registry holds no connection for path.
func (r *Registry) State(path string) (state State, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[path]
	if !ok {
		return StateClosed, false
	}
	return e.state, true
}

// Lookup returns the handle for path without creating a connection.
func (r *Registry) Lookup(path string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[path]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Paths returns the registered paths, sorted.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	paths := make([]string, 0, len(r.entries))
	for p := range r.entries {
		paths = append(paths, p)
	}
	r.mu.Unlock()

	sort.Strings(paths)
	return paths
}

// current reports whether e is still the registered entry for its path.
// Caller holds r.mu.
func (r *Registry) current(e *entry) bool {
	return r.entries[e.path] == e
}

func (r *Registry) dial(e *entry) {
	conn, err := r.dialer.Dial(e.ctx, r.baseURL+e.path)

	r.mu.Lock()
	if !r.current(e) || e.state != StateConnecting {
		r.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn("websocket dial failed", "path", e.path, "error", err)
		r.handleClose(e, nil)
		return
	}
	e.conn = conn
	e.state = StateOpen
	e.attempts = 0
	r.mu.Unlock()

	r.logger.Info("websocket connected", "path", e.path)
	r.observer.ConnectionOpened(e.path)
	go r.readLoop(e, conn)
}

func (r *Registry) readLoop(e *entry, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.logger.Debug("websocket read ended", "path", e.path, "error", err)
			r.handleClose(e, conn)
			return
		}

		msg, err := message.Decode(data)
		if err != nil {
			r.logger.Warn("dropping malformed websocket frame", "path", e.path, "error", err)
			r.observer.MessageDropped(e.path)
			continue
		}

		r.mu.Lock()
		live := r.current(e) && e.conn == conn
		r.mu.Unlock()
		if !live {
			continue
		}

		r.observer.MessageReceived(e.path, msg.Kind())
		if e.handler != nil {
			invokeHandlerSafe(e.handler, msg, e.path, r.logger)
		}
	}
}

// handleClose moves e out of connecting/open after conn ended. conn is nil
// for a failed dial. Stale notifications (after Disconnect, or for a socket
// that has been replaced) are ignored.
func (r *Registry) handleClose(e *entry, conn Conn) {
	r.mu.Lock()
	if !r.current(e) || e.conn != conn || (e.state != StateOpen && e.state != StateConnecting) {
		r.mu.Unlock()
		return
	}
	e.conn = nil

	if e.attempts >= r.maxAttempts {
		e.state = StateAbandoned
		delete(r.entries, e.path)
		attempts := e.attempts
		r.mu.Unlock()

		e.cancel()
		r.observer.ConnectionClosed(e.path)
		r.logger.Error("websocket reconnect attempts exhausted", "path", e.path, "attempts", attempts)
		r.observer.ConnectionAbandoned(e.path)
		return
	}

	delay := Backoff(e.attempts)
	attempt := e.attempts + 1
	e.state = StateRetrying
	e.timer = r.scheduler.AfterFunc(delay, func() { r.retry(e) })
	r.mu.Unlock()

	r.observer.ConnectionClosed(e.path)
	r.logger.Info("websocket closed, reconnecting",
		"path", e.path,
		"attempt", attempt,
		"max_attempts", r.maxAttempts,
		"delay", delay,
	)
	r.observer.ReconnectScheduled(e.path, attempt, delay)
}

func (r *Registry) retry(e *entry) {
	r.mu.Lock()
	if !r.current(e) || e.state != StateRetrying {
		r.mu.Unlock()
		return
	}
	e.attempts++
	e.timer = nil
	e.state = StateConnecting
	r.mu.Unlock()

	r.dial(e)
}

// invokeHandlerSafe calls a message handler with panic recovery.
// Panics are logged under a correlation id and do not stop the read loop.
func invokeHandlerSafe(h Handler, msg message.Message, path string, logger *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("websocket handler panicked",
				"panic", rec,
				"path", path,
				"kind", msg.Kind(),
				"correlation_id", uuid.NewString(),
			)
		}
	}()
	h(msg)
}

// Handle is a caller's reference to a logical connection.
type Handle struct {
	r *Registry
	e *entry
}

// Path returns the connection's path.
func (h *Handle) Path() string {
	return h.e.path
}

// State returns the connection's current state. A handle whose connection
// was abandoned or disconnected keeps reporting that final state even if
// the path has since been reconnected.
func (h *Handle) State() State {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	return h.e.state
}

// Attempts returns the number of reconnects made since the last open.
func (h *Handle) Attempts() int {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	return h.e.attempts
}

// Send writes v as a JSON text frame.
func (h *Handle) Send(v any) error {
	h.r.mu.Lock()
	conn, state := h.e.conn, h.e.state
	h.r.mu.Unlock()

	if state != StateOpen || conn == nil {
		return ErrNotConnected
	}

	h.e.writeMu.Lock()
	defer h.e.writeMu.Unlock()
	return conn.WriteJSON(v)
}
