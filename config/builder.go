package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/pulsedeck"
	"github.com/jpalmerr/pulsedeck/internal/storage"
)

// OpenStorage opens the storage driver named by the config. The caller
// owns the returned storage and must close it.
func OpenStorage(cfg *Config) (storage.Storage, error) {
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(cfg.Storage.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}
	return st, nil
}

// BuildOptions converts parsed configuration into SDK options. Storage and
// logger are not included: the caller opens and owns them.
func BuildOptions(cfg *Config) []pulsedeck.Option {
	opts := []pulsedeck.Option{
		pulsedeck.WithAPIBase(cfg.APIBase),
		pulsedeck.WithWSBase(cfg.WSBase),
		pulsedeck.WithChannels(cfg.Channels...),
		pulsedeck.WithMaxReconnectAttempts(cfg.Reconnect.Attempts()),
		pulsedeck.WithMetricsHours(cfg.MetricsHours),
		pulsedeck.WithRequestTimeout(cfg.RequestTimeout.Duration()),
	}

	if cfg.ListenPort > 0 {
		opts = append(opts, pulsedeck.WithListenPort(cfg.ListenPort))
	}
	if cfg.Title != "" {
		opts = append(opts, pulsedeck.WithTitle(cfg.Title))
	}

	// sort queries for deterministic ordering
	queries := make([]string, 0, len(cfg.Refresh))
	for q := range cfg.Refresh {
		queries = append(queries, q)
	}
	sort.Strings(queries)
	for _, q := range queries {
		opts = append(opts, pulsedeck.WithRefreshInterval(q, cfg.Refresh[q].Duration()))
	}

	return opts
}
