package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsedeck/internal/storage"
	"github.com/jpalmerr/pulsedeck/model"
)

// Gate validates a persisted token at startup.
type Gate struct {
	store  *Store
	logger *slog.Logger
}

// NewGate creates a gate for s.
func NewGate(s *Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = s.logger
	}
	return &Gate{store: s, logger: logger}
}

// CheckAuth revalidates the persisted token.
//
// It does nothing when no token is stored or the session is already
// authenticated. Otherwise it asks the backend for the current user: on
// success the session becomes authenticated with the stored token; on any
// failure the token is removed, the session is logged out and the returned
// error wraps [ErrSessionRejected]. The loading flag is cleared on every
// path, including a panic inside the backend call.
func (g *Gate) CheckAuth(ctx context.Context) error {
	token, err := storage.GetOptional(g.store.storage, storage.KeyAuthToken)
	if err != nil {
		return fmt.Errorf("failed to read stored token: %w", err)
	}
	if token == "" || g.store.Snapshot().IsAuthenticated {
		return nil
	}

	g.store.SetLoading(true)
	defer g.store.SetLoading(false)

	user, err := g.currentUser(ctx)
	if err != nil {
		g.logger.Warn("stored token rejected", "error", err)
		if delErr := g.store.storage.Delete(storage.KeyAuthToken); delErr != nil {
			g.logger.Warn("failed to remove rejected token", "error", delErr)
		}
		g.store.Logout()
		return fmt.Errorf("%w: %w", ErrSessionRejected, err)
	}

	if err := g.store.SetAuthenticated(*user, token); err != nil {
		return err
	}
	g.logger.Debug("stored token validated", "username", user.Username)
	return nil
}

// currentUser calls the backend, turning a panic into an error.
func (g *Gate) currentUser(ctx context.Context) (user *model.User, err error) {
	defer func() {
		if r := recover(); r != nil {
			id := uuid.NewString()
			g.logger.Error("auth check panicked", "panic", r, "correlation_id", id)
			user, err = nil, fmt.Errorf("auth check panicked (correlation id %s): %v", id, r)
		}
	}()

	user, err = g.store.auth.CurrentUser(ctx)
	if err == nil && user == nil {
		err = fmt.Errorf("backend returned no user")
	}
	return user, err
}
