package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsedeck"
	"github.com/jpalmerr/pulsedeck/config"
	"github.com/jpalmerr/pulsedeck/internal/storage"
)

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = errors.New("not logged in (run: pulsedeck login -u USER)")

// client bundles what every command needs.
type client struct {
	cfg     *config.Config
	logger  *slog.Logger
	storage storage.Storage
	dash    *pulsedeck.Dashboard
}

// openClient loads the config, opens the session storage and builds the
// dashboard with extra appended to the configured options. Callers must
// Close the client.
func openClient(cmd *cobra.Command, extra ...pulsedeck.Option) (*client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	st, err := config.OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	opts := append(config.BuildOptions(cfg),
		pulsedeck.WithStorage(st),
		pulsedeck.WithLogger(logger),
	)
	opts = append(opts, extra...)
	dash, err := pulsedeck.New(opts...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}

	return &client{cfg: cfg, logger: logger, storage: st, dash: dash}, nil
}

// requireSession revalidates the stored token.
func (c *client) requireSession(ctx context.Context) error {
	if err := c.dash.CheckAuth(ctx); err != nil {
		c.logger.Debug("stored session rejected", "error", err)
		return errNotLoggedIn
	}
	if !c.dash.Session().IsAuthenticated {
		return errNotLoggedIn
	}
	return nil
}

// Close releases the dashboard, then the storage it uses.
func (c *client) Close() {
	if err := c.dash.Close(); err != nil {
		c.logger.Warn("failed to close dashboard", "error", err)
	}
	if err := c.storage.Close(); err != nil {
		c.logger.Warn("failed to close storage", "error", err)
	}
}
