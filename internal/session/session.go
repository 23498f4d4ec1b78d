package session

import (
	"context"
	"sync"

	"github.com/CharadesAI/charadesai-sub000/internal/api"
	"github.com/CharadesAI/charadesai-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// Session is the single source of truth for "is there a logged-in user".
// It is constructed once and passed to whatever needs authentication state;
// there is no package-level singleton.
//
// Until Load has run, Loading reports true and consumers must treat the
// state as undetermined rather than unauthenticated.
type Session struct {
	mu      sync.RWMutex
	store   Store
	client  *api.Client
	logger  *logrus.Logger
	user    *models.Profile
	token   string
	loading bool
}

// NewSession creates a session in the loading state
func NewSession(store Store, client *api.Client, logger *logrus.Logger) *Session {
	return &Session{
		store:   store,
		client:  client,
		logger:  logger,
		loading: true,
	}
}

// Load populates the session from the store. No network call is made to
// validate the token; validity is assumed until a request fails.
func (s *Session) Load(ctx context.Context) {
	token, err := s.store.Token(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read stored token")
	}
	user, err := s.store.User(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read stored profile")
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.loading = false
	s.mu.Unlock()
}

// Login installs a freshly obtained token and optional profile, writing
// through to the store immediately.
func (s *Session) Login(ctx context.Context, token string, user *models.Profile) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.loading = false
	s.mu.Unlock()

	if err := s.store.SetToken(ctx, token); err != nil {
		s.logger.WithError(err).Warn("Failed to persist token")
	}
	if user != nil {
		if err := s.store.SetUser(ctx, user); err != nil {
			s.logger.WithError(err).Warn("Failed to persist profile")
		}
	}
}

// Logout attempts server-side revocation, then clears local state
// regardless of the outcome. It never returns an error: logout is
// unconditional from the client's perspective.
func (s *Session) Logout(ctx context.Context) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token != "" && s.client != nil {
		if err := s.client.Logout(ctx, token); err != nil {
			s.logger.WithError(err).Warn("Server-side logout failed, clearing local session anyway")
		}
	}

	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.store.ClearToken(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to clear stored session")
	}
}

// SetUser replaces the profile after a profile edit or avatar upload,
// writing through to the store.
func (s *Session) SetUser(ctx context.Context, user *models.Profile) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	if err := s.store.SetUser(ctx, user); err != nil {
		s.logger.WithError(err).Warn("Failed to persist profile")
	}
}

// Token returns the active bearer token, or empty
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the active profile, or nil
func (s *Session) User() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Loading reports whether the persisted state has been read yet
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Authenticated reports whether both a token and a profile are present.
// It is only meaningful once Loading is false.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.loading && s.token != "" && s.user != nil
}
