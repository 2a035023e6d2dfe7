package pulsedeck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/pulsedeck/dashboard"
	"github.com/jpalmerr/pulsedeck/internal/api"
	"github.com/jpalmerr/pulsedeck/internal/poller"
	"github.com/jpalmerr/pulsedeck/internal/server"
	"github.com/jpalmerr/pulsedeck/internal/session"
	"github.com/jpalmerr/pulsedeck/internal/storage"
	"github.com/jpalmerr/pulsedeck/internal/store"
	"github.com/jpalmerr/pulsedeck/internal/telemetry"
	"github.com/jpalmerr/pulsedeck/internal/wsclient"
	"github.com/jpalmerr/pulsedeck/message"
	"github.com/jpalmerr/pulsedeck/model"
)

const (
	defaultAPIBase        = "http://localhost:8000"
	defaultWSBase         = "ws://localhost:8000"
	defaultMetricsHours   = 1
	defaultMaxConcurrency = 4
	defaultRequestTimeout = 30 * time.Second
	defaultRefetch        = 30 * time.Second
)

// ErrNotAuthenticated is returned by [Dashboard.Start] when no valid
// session exists after the auth check.
var ErrNotAuthenticated = errors.New("not authenticated")

// Snapshot and session types re-exported for callers outside this module.
type (
	Session          = session.Session
	SessionState     = session.State
	ServicesSnapshot = store.ServicesSnapshot
	EventsSnapshot   = store.EventsSnapshot
	MetricsSnapshot  = store.MetricsSnapshot
	Change           = store.Change
	DiscoverResult   = api.DiscoverResult
	ActionResult     = api.ActionResult
	RegisterRequest  = api.RegisterRequest
)

// Dashboard is the client's orchestrator.
//
// Dashboard owns the session, the domain stores, the REST client and the
// WebSocket connection registry. Stores are filled by REST fetches and kept
// current by pushed messages and periodic refetches.
//
// The typical lifecycle is:
//
//	d, err := pulsedeck.New(pulsedeck.WithAPIBase(api), pulsedeck.WithWSBase(ws))
//	if err != nil {
//	    slog.Error("failed to create dashboard", "error", err)
//	    os.Exit(1)
//	}
//	defer d.Close()
//
//	if err := d.Login(ctx, user, pass); err != nil { ... }
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	d.Start(ctx) // blocks until context cancelled
//
// All methods are safe for concurrent use.
type Dashboard struct {
	logger         *slog.Logger
	storage        storage.Storage
	client         *api.Client
	session        *session.Store
	gate           *session.Gate
	services       *store.ServicesStore
	events         *store.EventsStore
	metrics        *store.MetricsStore
	registry       *wsclient.Registry
	telemetry      *telemetry.Metrics
	promRegistry   *prometheus.Registry
	changes        *store.Broadcaster
	stopForwarding context.CancelFunc
	forwarders     sync.WaitGroup

	channels        []string
	refresh         map[string]time.Duration
	metricsHours    int
	listenPort      int
	title           string
	maxConcurrency  int
	requestTimeout  time.Duration
	onUnauthorized  func()
	messageCallback []func(string, message.Message)

	mu        sync.Mutex
	running   bool
	scheduler *poller.Scheduler
	stopRun   context.CancelFunc
	closed    bool

	watchMu     sync.Mutex
	watchers    map[int]map[uint64]func(message.Message)
	nextWatcher uint64
}

// New creates a [Dashboard] with the given options.
//
// Defaults:
//   - API base "http://localhost:8000", WebSocket base "ws://localhost:8000"
//   - Channels: [DefaultChannels]
//   - Refetch intervals: see [DefaultRefreshInterval]
//   - Storage: in-memory
//   - Mirror server: disabled
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Dashboard, error) {
	cfg := &dashConfig{
		apiBase:        defaultAPIBase,
		wsBase:         defaultWSBase,
		channels:       append([]string(nil), DefaultChannels...),
		refresh:        make(map[string]time.Duration, len(defaultRefresh)),
		metricsHours:   defaultMetricsHours,
		maxConcurrency: defaultMaxConcurrency,
		requestTimeout: defaultRequestTimeout,
		maxAttempts:    wsclient.DefaultMaxAttempts,
	}
	for name, d := range defaultRefresh {
		cfg.refresh[name] = d
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := validateBase(cfg.apiBase, "http", "https"); err != nil {
		return nil, fmt.Errorf("api base: %w", err)
	}
	if err := validateBase(cfg.wsBase, "ws", "wss"); err != nil {
		return nil, fmt.Errorf("websocket base: %w", err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	st := cfg.storage
	if st == nil {
		st = storage.NewMemoryStorage()
	}
	promReg := cfg.registry
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}

	d := &Dashboard{
		logger:          logger,
		storage:         st,
		services:        store.NewServicesStore(),
		events:          store.NewEventsStore(),
		metrics:         store.NewMetricsStore(),
		promRegistry:    promReg,
		changes:         store.NewBroadcaster(),
		channels:        cfg.channels,
		refresh:         cfg.refresh,
		metricsHours:    cfg.metricsHours,
		listenPort:      cfg.listenPort,
		title:           cfg.title,
		maxConcurrency:  cfg.maxConcurrency,
		requestTimeout:  cfg.requestTimeout,
		onUnauthorized:  cfg.onUnauthorized,
		messageCallback: cfg.messageCallback,
		watchers:        make(map[int]map[uint64]func(message.Message)),
	}

	clientOpts := []api.ClientOption{
		api.WithTimeout(cfg.requestTimeout),
		api.WithUnauthorizedHandler(d.handleUnauthorized),
		api.WithLogger(logger),
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(cfg.httpClient))
	}
	d.client = api.NewClient(cfg.apiBase, st, clientOpts...)

	d.session = session.NewStore(d.client, st, session.WithLogger(logger))
	d.gate = session.NewGate(d.session, logger)

	metrics, err := newTelemetry(promReg)
	if err != nil {
		return nil, err
	}
	d.telemetry = metrics

	dialer := cfg.dialer
	if dialer == nil {
		dialer = wsclient.NewWebsocketDialer(d.session.Token)
	}
	regOpts := []wsclient.RegistryOption{
		wsclient.WithDialer(dialer),
		wsclient.WithMaxAttempts(cfg.maxAttempts),
		wsclient.WithLogger(logger),
		wsclient.WithObserver(&modeObserver{metrics: metrics, changes: d.changes}),
	}
	if cfg.scheduler != nil {
		regOpts = append(regOpts, wsclient.WithScheduler(cfg.scheduler))
	}
	d.registry = wsclient.NewRegistry(cfg.wsBase, regOpts...)

	// fan every store's changes into one stream
	fwdCtx, cancel := context.WithCancel(context.Background())
	d.stopForwarding = cancel
	for _, src := range []store.Notifier{d.services, d.events, d.metrics, d.session} {
		d.forwarders.Add(1)
		go func() {
			defer d.forwarders.Done()
			d.changes.Forward(fwdCtx, src)
		}()
	}

	return d, nil
}

// newTelemetry registers the collectors, turning a duplicate registration
// into an error.
func newTelemetry(reg prometheus.Registerer) (m *telemetry.Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to register metrics: %v", r)
		}
	}()
	return telemetry.New(reg), nil
}

func validateBase(base string, schemes ...string) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("url %q has no host", base)
			}
			return nil
		}
	}
	return fmt.Errorf("url scheme must be one of %v, got %q", schemes, u.Scheme)
}

// handleUnauthorized runs when the backend rejects the session. A running
// Start is stopped and returns [ErrNotAuthenticated].
func (d *Dashboard) handleUnauthorized() {
	d.logger.Warn("session rejected by backend, logging out")
	d.session.Logout()
	d.registry.DisconnectAll()

	d.mu.Lock()
	stop := d.stopRun
	d.mu.Unlock()
	if stop != nil {
		stop()
	}
	if d.onUnauthorized != nil {
		d.onUnauthorized()
	}
}

// Login authenticates with the backend and persists the session.
func (d *Dashboard) Login(ctx context.Context, username, password string) error {
	return d.session.Login(ctx, username, password)
}

// Register creates an account and logs it in.
func (d *Dashboard) Register(ctx context.Context, req RegisterRequest) error {
	return d.session.Register(ctx, req)
}

// Logout invalidates the token on the backend, clears the local session
// and closes every channel. The local session is cleared even when the
// backend call fails; that failure is returned.
func (d *Dashboard) Logout(ctx context.Context) error {
	err := d.session.LogoutRemote(ctx)
	d.registry.DisconnectAll()
	return err
}

// CheckAuth revalidates a persisted token against the backend.
func (d *Dashboard) CheckAuth(ctx context.Context) error {
	return d.gate.CheckAuth(ctx)
}

// Session returns a snapshot of the session.
func (d *Dashboard) Session() Session {
	return d.session.Snapshot()
}

// ClearError clears a retained login error.
func (d *Dashboard) ClearError() {
	d.session.ClearError()
}

// CachedUser returns the user recorded by the last login, which may be
// stale.
func (d *Dashboard) CachedUser() (*model.User, bool) {
	return d.session.CachedUser()
}

// ServicesSnapshot returns a copy of the services store.
func (d *Dashboard) ServicesSnapshot() ServicesSnapshot { return d.services.Snapshot() }

// EventsSnapshot returns a copy of the events store.
func (d *Dashboard) EventsSnapshot() EventsSnapshot { return d.events.Snapshot() }

// MetricsSnapshot returns a copy of the metrics store.
func (d *Dashboard) MetricsSnapshot() MetricsSnapshot { return d.metrics.Snapshot() }

// Services returns the cached service list.
func (d *Dashboard) Services() []model.Service { return d.services.Services() }

// Events returns the cached events, newest first.
func (d *Dashboard) Events() []model.Event { return d.events.Events() }

// Alerts fetches the alert list. Alerts are not cached.
func (d *Dashboard) Alerts(ctx context.Context) ([]model.Alert, error) {
	return d.client.ListAlerts(ctx)
}

// Subscribe returns a channel that receives a [Change] after every store
// or session mutation. Slow consumers miss changes; read the snapshots to
// catch up. Call Unsubscribe when done.
func (d *Dashboard) Subscribe() <-chan Change { return d.changes.Subscribe() }

// Unsubscribe removes a subscription and closes its channel.
func (d *Dashboard) Unsubscribe(ch <-chan Change) { d.changes.Unsubscribe(ch) }

// MetricsRegistry returns the Prometheus registry holding the dashboard's
// collectors.
func (d *Dashboard) MetricsRegistry() *prometheus.Registry { return d.promRegistry }

// Start runs the dashboard until ctx is cancelled.
//
// Start is a blocking call. It:
//
//   - revalidates a persisted token ([Dashboard.CheckAuth])
//   - fetches every query once
//   - opens the configured channels
//   - refetches each query on its interval
//   - serves the mirror when a listen port is configured
//
// On cancellation every channel is closed and the refresh scheduler is
// stopped. Returns nil on graceful shutdown, [ErrNotAuthenticated] when no
// valid session exists or the backend rejects the session while running,
// or an error if the mirror server fails to start.
func (d *Dashboard) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	d.mu.Lock()
	if d.running || d.closed {
		d.mu.Unlock()
		return errors.New("dashboard already running or closed")
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.stopRun = nil
		d.mu.Unlock()
	}()

	if err := d.CheckAuth(ctx); err != nil {
		d.logger.Warn("auth check failed", "error", err)
	}
	sess := d.session.Snapshot()
	if !sess.IsAuthenticated {
		return ErrNotAuthenticated
	}

	// cancelled by ctx or by a 401 from the backend
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	d.mu.Lock()
	d.stopRun = stopRun
	d.mu.Unlock()

	d.logger.Info("pulsedeck starting",
		"user", sess.User.Username,
		"channels", d.channels,
	)

	if err := d.Refresh(runCtx); err != nil {
		d.logger.Warn("initial refresh incomplete", "error", err)
	}
	if runCtx.Err() != nil {
		return d.stopReason(ctx)
	}

	for _, path := range d.channels {
		d.registry.Connect(path, d.channelHandler(path))
	}

	sched := poller.NewScheduler(d.jobs(), defaultRefetch, d.maxConcurrency, d.logger)
	sched.DeferFirstRun() // Refresh above already fetched everything
	sched.Start(runCtx)
	d.mu.Lock()
	d.scheduler = sched
	d.mu.Unlock()

	// track the results consumer goroutine to ensure clean shutdown
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range sched.Results() {
			d.telemetry.ObserveRefresh(result.Job, result.Duration, result.Error)

			logAttrs := []any{
				"job", result.Job,
				"triggered", result.Triggered,
				"duration_ms", result.Duration.Milliseconds(),
			}
			if result.Error != nil {
				d.logger.Warn("refresh failed", append(logAttrs, "error", result.Error.Error())...)
			} else {
				d.logger.Debug("refresh completed", logAttrs...)
			}
		}
	}()

	cleanup := func() {
		d.registry.DisconnectAll()
		d.mu.Lock()
		d.scheduler = nil
		d.mu.Unlock()
		sched.Stop() // closes results channel
		wg.Wait()
	}

	if d.listenPort > 0 {
		mirror := server.NewServer(mirrorSource{d}, d.listenPort, dashboard.Assets, d.title, d.promRegistry, d.logger)
		if err := mirror.Start(runCtx); err != nil {
			cleanup()
			return fmt.Errorf("failed to start mirror server: %w", err)
		}
		d.logger.Info("mirror available", "url", fmt.Sprintf("http://localhost:%d", d.listenPort))
	}

	<-runCtx.Done()
	cleanup()
	d.logger.Info("pulsedeck stopped")
	return d.stopReason(ctx)
}

// stopReason maps the end of a run to Start's result: nil when the caller
// cancelled ctx, [ErrNotAuthenticated] when the session was rejected.
func (d *Dashboard) stopReason(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return ErrNotAuthenticated
}

// Close stops change forwarding and releases idle HTTP connections. It
// does not close the storage passed to [WithStorage].
func (d *Dashboard) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.registry.DisconnectAll()
	d.stopForwarding()
	d.forwarders.Wait()
	d.client.Close()
	return nil
}

// mirrorSource adapts a Dashboard to the mirror server.
type mirrorSource struct {
	*Dashboard
}

func (m mirrorSource) Mode() string { return m.Dashboard.Mode().String() }
