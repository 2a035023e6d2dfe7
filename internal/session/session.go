package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jpalmerr/pulsedeck/internal/api"
	"github.com/jpalmerr/pulsedeck/internal/storage"
	"github.com/jpalmerr/pulsedeck/internal/store"
	"github.com/jpalmerr/pulsedeck/model"
)

const (
	loginFallback    = "Login failed"
	registerFallback = "Registration failed"
)

var (
	// ErrLoginFailed wraps every failed Login or Register.
	ErrLoginFailed = errors.New("login failed")

	// ErrSessionRejected is returned by CheckAuth when the backend refuses
	// the stored token.
	ErrSessionRejected = errors.New("stored session rejected")
)

// State is the derived lifecycle state of a [Session].
type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateError          State = "error"
)

// Session is a snapshot of the authentication state.
type Session struct {
	User            *model.User `json:"user"`
	Token           *string     `json:"token"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsLoading       bool        `json:"isLoading"`
	Error           *string     `json:"error"`
}

// State derives the lifecycle state from the session's fields.
func (s Session) State() State {
	switch {
	case s.IsAuthenticated:
		return StateAuthenticated
	case s.IsLoading:
		return StateAuthenticating
	case s.Error != nil:
		return StateError
	default:
		return StateAnonymous
	}
}

// persisted is the layout stored under storage.KeySession.
type persisted struct {
	User            *model.User `json:"user"`
	Token           *string     `json:"token"`
	IsAuthenticated bool        `json:"isAuthenticated"`
}

// Authenticator is the subset of the REST client the session needs.
// *api.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*model.User, error)
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the session state machine. The zero value is not usable; call
// [NewStore].
type Store struct {
	auth    Authenticator
	storage storage.Storage
	logger  *slog.Logger
	changes *store.Broadcaster

	mu      sync.RWMutex
	current Session
}

// NewStore creates an anonymous session store.
func NewStore(auth Authenticator, st storage.Storage, opts ...Option) *Store {
	s := &Store{
		auth:    auth,
		storage: st,
		logger:  slog.Default(),
		changes: store.NewBroadcaster(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.current)
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	return s.Snapshot().State()
}

// Token returns the session token, or "" when not authenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.Token == nil {
		return ""
	}
	return *s.current.Token
}

// Subscribe returns a channel that receives a change after every transition.
func (s *Store) Subscribe() <-chan store.Change { return s.changes.Subscribe() }

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch <-chan store.Change) { s.changes.Unsubscribe(ch) }

// Login authenticates with username and password.
//
// On success the token and session are persisted and the store becomes
// authenticated. On failure the store is left unauthenticated with Error set
// to the server's detail message (or the error text, or "Login failed") and
// the returned error wraps [ErrLoginFailed] and the cause.
func (s *Store) Login(ctx context.Context, username, password string) error {
	s.beginAuth()

	resp, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return s.failAuth(err, loginFallback)
	}
	return s.completeAuth(resp)
}

// Register creates an account and signs in with it.
func (s *Store) Register(ctx context.Context, req api.RegisterRequest) error {
	s.beginAuth()

	resp, err := s.auth.Register(ctx, req)
	if err != nil {
		return s.failAuth(err, registerFallback)
	}
	return s.completeAuth(resp)
}

func (s *Store) beginAuth() {
	s.update(func(cur *Session) {
		cur.IsLoading = true
		cur.Error = nil
	})
}

func (s *Store) failAuth(cause error, fallback string) error {
	msg := api.Detail(cause, fallback)
	s.update(func(cur *Session) {
		cur.User = nil
		cur.Token = nil
		cur.IsAuthenticated = false
		cur.IsLoading = false
		cur.Error = &msg
	})
	s.logger.Warn("authentication failed", "error", msg)
	return fmt.Errorf("%w: %w", ErrLoginFailed, cause)
}

func (s *Store) completeAuth(resp *api.AuthResponse) error {
	if resp == nil || resp.Token == "" {
		return s.failAuth(errors.New("server returned no token"), loginFallback)
	}
	if err := s.storage.Set(storage.KeyAuthToken, resp.Token); err != nil {
		return s.failAuth(fmt.Errorf("failed to persist token: %w", err), loginFallback)
	}

	user := resp.User
	s.setAuthenticated(user, resp.Token)
	s.logger.Info("logged in", "username", user.Username)
	return nil
}

// SetAuthenticated installs a validated user and token. The token is
// persisted.
func (s *Store) SetAuthenticated(user model.User, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := s.storage.Set(storage.KeyAuthToken, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	s.setAuthenticated(user, token)
	return nil
}

func (s *Store) setAuthenticated(user model.User, token string) {
	s.update(func(cur *Session) {
		cur.User = &user
		cur.Token = &token
		cur.IsAuthenticated = true
		cur.IsLoading = false
		cur.Error = nil
	})
}

// Logout clears the session and removes the persisted token. The loading
// flag is left alone so a logout during CheckAuth does not hide the check.
func (s *Store) Logout() {
	if err := s.storage.Delete(storage.KeyAuthToken); err != nil {
		s.logger.Warn("failed to remove persisted token", "error", err)
	}
	s.update(func(cur *Session) {
		cur.User = nil
		cur.Token = nil
		cur.IsAuthenticated = false
		cur.Error = nil
	})
}

// LogoutRemote invalidates the token on the server, then logs out locally.
// The local logout happens even when the server call fails.
func (s *Store) LogoutRemote(ctx context.Context) error {
	var remoteErr error
	if s.Snapshot().IsAuthenticated {
		if err := s.auth.Logout(ctx); err != nil {
			s.logger.Warn("server-side logout failed", "error", err)
			remoteErr = fmt.Errorf("server-side logout: %w", err)
		}
	}
	s.Logout()
	return remoteErr
}

// SetLoading sets the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.update(func(cur *Session) { cur.IsLoading = loading })
}

// ClearError clears a retained login error.
func (s *Store) ClearError() {
	s.update(func(cur *Session) { cur.Error = nil })
}

// Reset returns the in-memory session to anonymous without touching
// durable storage.
func (s *Store) Reset() {
	s.mu.Lock()
	s.current = Session{}
	s.mu.Unlock()
	s.changes.Publish(store.TopicSession)
}

// CachedUser returns the user recorded in the persisted session blob. The
// value is advisory and may be stale.
func (s *Store) CachedUser() (*model.User, bool) {
	raw, err := storage.GetOptional(s.storage, storage.KeySession)
	if err != nil || raw == "" {
		return nil, false
	}
	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Debug("ignoring unreadable persisted session", "error", err)
		return nil, false
	}
	if p.User == nil {
		return nil, false
	}
	return p.User, true
}

// update applies fn under the lock, persists the credential fields when
// they changed and notifies subscribers.
func (s *Store) update(fn func(cur *Session)) {
	s.mu.Lock()
	before := persistedOf(s.current)
	fn(&s.current)
	after := persistedOf(s.current)
	s.mu.Unlock()

	if !samePersisted(before, after) {
		s.persist(after)
	}
	s.changes.Publish(store.TopicSession)
}

func (s *Store) persist(p persisted) {
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn("failed to encode session", "error", err)
		return
	}
	if err := s.storage.Set(storage.KeySession, string(data)); err != nil {
		s.logger.Warn("failed to persist session", "error", err)
	}
}

func persistedOf(s Session) persisted {
	return persisted{User: s.User, Token: s.Token, IsAuthenticated: s.IsAuthenticated}
}

func samePersisted(a, b persisted) bool {
	if a.IsAuthenticated != b.IsAuthenticated {
		return false
	}
	if (a.Token == nil) != (b.Token == nil) || (a.Token != nil && *a.Token != *b.Token) {
		return false
	}
	if (a.User == nil) != (b.User == nil) || (a.User != nil && *a.User != *b.User) {
		return false
	}
	return true
}

func copySession(s Session) Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Token != nil {
		t := *s.Token
		out.Token = &t
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}
