package pulsedeck

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/pulsedeck/internal/storage"
	"github.com/jpalmerr/pulsedeck/internal/wsclient"
	"github.com/jpalmerr/pulsedeck/message"
)

// dashConfig holds mutable state during Dashboard construction.
type dashConfig struct {
	apiBase         string
	wsBase          string
	storage         storage.Storage
	logger          *slog.Logger
	channels        []string
	refresh         map[string]time.Duration
	metricsHours    int
	listenPort      int
	title           string
	maxConcurrency  int
	requestTimeout  time.Duration
	maxAttempts     int
	httpClient      *http.Client
	dialer          wsclient.Dialer
	scheduler       wsclient.Scheduler
	registry        *prometheus.Registry
	onUnauthorized  func()
	messageCallback []func(path string, msg message.Message)
}

// Option is a function that configures a [Dashboard] during construction.
//
// Options return an error if validation fails; [New] stops at the first
// failing option.
type Option func(*dashConfig) error

// WithAPIBase sets the backend origin for REST calls, e.g.
// "https://monitor.example.com". The "/api/v1" prefix is added by the
// client. Defaults to "http://localhost:8000".
func WithAPIBase(base string) Option {
	return func(cfg *dashConfig) error {
		if base == "" {
			return errors.New("api base cannot be empty")
		}
		cfg.apiBase = base
		return nil
	}
}

// WithWSBase sets the WebSocket origin, e.g. "wss://monitor.example.com".
// Defaults to "ws://localhost:8000".
func WithWSBase(base string) Option {
	return func(cfg *dashConfig) error {
		if base == "" {
			return errors.New("websocket base cannot be empty")
		}
		cfg.wsBase = base
		return nil
	}
}

// WithStorage sets the durable storage holding the session and token.
//
// The dashboard does not close the storage; the caller owns it. Defaults to
// process-local memory storage, which forgets the session on exit.
func WithStorage(st storage.Storage) Option {
	return func(cfg *dashConfig) error {
		if st == nil {
			return errors.New("storage cannot be nil")
		}
		cfg.storage = st
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *dashConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithChannels replaces the set of WebSocket channels opened by
// [Dashboard.Start]. Paths must be ones the dashboard knows how to handle:
// [ChannelServices], [ChannelEvents], [ChannelMonitoring] and
// [ChannelAlerts].
func WithChannels(paths ...string) Option {
	return func(cfg *dashConfig) error {
		seen := make(map[string]bool, len(paths))
		for _, p := range paths {
			if !knownChannel(p) {
				return fmt.Errorf("unknown channel %q", p)
			}
			if seen[p] {
				return fmt.Errorf("duplicate channel %q", p)
			}
			seen[p] = true
		}
		cfg.channels = append([]string(nil), paths...)
		return nil
	}
}

// WithRefreshInterval sets how often the named query is refetched. Query
// names are the Query* constants.
//
// Returns an error for an unknown query or an interval outside 1s to 1h.
func WithRefreshInterval(query string, d time.Duration) Option {
	return func(cfg *dashConfig) error {
		if _, ok := defaultRefresh[query]; !ok {
			return fmt.Errorf("unknown query %q", query)
		}
		if d < time.Second || d > time.Hour {
			return fmt.Errorf("refresh interval for %s must be between 1s and 1h, got %s", query, d)
		}
		cfg.refresh[query] = d
		return nil
	}
}

// WithMetricsHours sets the history window requested for server and
// container metrics. Defaults to 1.
func WithMetricsHours(hours int) Option {
	return func(cfg *dashConfig) error {
		if hours < 1 {
			return errors.New("metrics hours must be at least 1")
		}
		cfg.metricsHours = hours
		return nil
	}
}

// WithListenPort enables the mirror HTTP server on port.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithListenPort(port int) Option {
	return func(cfg *dashConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.listenPort = port
		return nil
	}
}

// WithTitle sets the mirror page title. Defaults to "PulseDeck".
func WithTitle(title string) Option {
	return func(cfg *dashConfig) error {
		cfg.title = title
		return nil
	}
}

// WithMaxConcurrency sets how many queries are fetched at once. Defaults
// to 4.
func WithMaxConcurrency(n int) Option {
	return func(cfg *dashConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithRequestTimeout bounds each REST call. Defaults to 30s.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *dashConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithMaxReconnectAttempts sets how many reconnects each channel tries
// before it is abandoned. Defaults to 5.
func WithMaxReconnectAttempts(n int) Option {
	return func(cfg *dashConfig) error {
		if n < 0 {
			return errors.New("max reconnect attempts cannot be negative")
		}
		cfg.maxAttempts = n
		return nil
	}
}

// WithHTTPClient replaces the HTTP client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *dashConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d wsclient.Dialer) Option {
	return func(cfg *dashConfig) error {
		if d == nil {
			return errors.New("dialer cannot be nil")
		}
		cfg.dialer = d
		return nil
	}
}

// WithReconnectScheduler replaces the clock used for reconnect delays.
func WithReconnectScheduler(s wsclient.Scheduler) Option {
	return func(cfg *dashConfig) error {
		if s == nil {
			return errors.New("scheduler cannot be nil")
		}
		cfg.scheduler = s
		return nil
	}
}

// WithMetricsRegistry registers the dashboard's Prometheus collectors with
// reg and serves reg on the mirror's /metrics endpoint. By default a fresh
// registry is used.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cfg *dashConfig) error {
		if reg == nil {
			return errors.New("metrics registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithUnauthorizedHandler registers fn to run after the backend rejects
// the session (any 401 outside login). The session has already been
// cleared when fn runs.
func WithUnauthorizedHandler(fn func()) Option {
	return func(cfg *dashConfig) error {
		cfg.onUnauthorized = fn
		return nil
	}
}

// WithMessageCallback registers a function called for every decoded
// message on every channel, after the dashboard has applied it to its
// stores.
//
// Callbacks run on the channel's read goroutine and must not block.
// Panics are recovered and logged. Nil callbacks are silently ignored.
func WithMessageCallback(cb func(path string, msg message.Message)) Option {
	return func(cfg *dashConfig) error {
		if cb == nil {
			return nil
		}
		cfg.messageCallback = append(cfg.messageCallback, cb)
		return nil
	}
}
