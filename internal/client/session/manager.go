// Package session keeps the signed-in user's session, persists it across
// restarts and hands out access tokens to the remote clients, refreshing
// them shortly before they expire.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/zelebiz/zelebiz/internal/client/kvstore"
	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/logging"
	"github.com/zelebiz/zelebiz/internal/notify"
)

// refreshLeeway is how long before expiry AccessToken refreshes a token.
const refreshLeeway = time.Minute

type Event int

const (
	SignedIn Event = iota + 1
	SignedOut
	TokenRefreshed
	UserUpdated
)

func (e Event) String() string {
	switch e {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case TokenRefreshed:
		return "token_refreshed"
	case UserUpdated:
		return "user_updated"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Change is delivered to listeners. Session is nil after SignedOut.
type Change struct {
	Event   Event
	Session *models.Session
}

// Provider is the identity provider, in practice the remote client.
type Provider interface {
	SignUp(ctx context.Context, email, password string, profile models.Profile) (*models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

type Manager struct {
	store    kvstore.Store
	provider Provider
	logger   logging.Logger
	now      func() time.Time

	mu      sync.RWMutex
	current *models.Session

	refreshMu sync.Mutex
	listeners notify.Set[Change]
}

func NewManager(store kvstore.Store, provider Provider, logger logging.Logger) *Manager {
	return &Manager{
		store:    store,
		provider: provider,
		logger:   logger.With("module", "session"),
		now:      time.Now,
	}
}

// Load restores a persisted session. No event is emitted.
func (m *Manager) Load(ctx context.Context) error {
	raw, err := m.store.Get(ctx, common.StorageKeyUserData)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		m.logger.Warn(ctx, "discarding unreadable session", "error", err)
		return m.store.Remove(ctx, common.StorageKeyUserData)
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return nil
}

// Current returns a copy of the session or nil when signed out.
func (m *Manager) Current() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// OnChange registers fn for session transitions. Listeners are called
// synchronously after the new state is stored.
func (m *Manager) OnChange(fn func(Change)) (unsubscribe func()) {
	return m.listeners.Subscribe(fn)
}

func validateCredentials(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email %q", common.ErrValidation, email)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", common.ErrValidation)
	}
	return nil
}

func (m *Manager) SignUp(ctx context.Context, email, password string, profile models.Profile) (*models.Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	s, err := m.provider.SignUp(ctx, email, password, profile)
	if err != nil {
		return nil, err
	}
	return s, m.set(ctx, s, SignedIn)
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	s, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s, m.set(ctx, s, SignedIn)
}

// SignOut revokes the refresh token when the server is reachable and always
// clears the local session.
func (m *Manager) SignOut(ctx context.Context) error {
	s := m.Current()
	if s == nil {
		return nil
	}
	if err := m.provider.SignOut(ctx, s.RefreshToken); err != nil {
		m.logger.Warn(ctx, "server sign-out failed, clearing local session anyway", "error", err)
	}
	return m.clear(ctx)
}

func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	s := m.Current()
	if s == nil {
		return common.ErrUnauthorized
	}
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", common.ErrValidation)
	}
	if err := m.provider.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}
	m.listeners.Emit(Change{Event: UserUpdated, Session: s})
	return nil
}

// Refresh exchanges the refresh token for a new session. A rejected refresh
// token signs the user out.
func (m *Manager) Refresh(ctx context.Context) (*models.Session, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) (*models.Session, error) {
	s := m.Current()
	if s == nil {
		return nil, common.ErrUnauthorized
	}

	next, err := m.provider.Refresh(ctx, s.RefreshToken)
	if errors.Is(err, common.ErrUnauthorized) {
		m.logger.Info(ctx, "refresh token rejected, signing out", "user", s.User.Email)
		if cerr := m.clear(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if next.User.ID == "" {
		next.User = s.User
	}
	return next, m.set(ctx, next, TokenRefreshed)
}

// AccessToken returns a token valid for at least a little while, refreshing
// it first when it is about to expire.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	s := m.Current()
	if s == nil {
		return "", common.ErrUnauthorized
	}
	if !s.ExpiresWithin(m.now(), refreshLeeway) {
		return s.AccessToken, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	s = m.Current()
	if s == nil {
		return "", common.ErrUnauthorized
	}
	if !s.ExpiresWithin(m.now(), refreshLeeway) {
		return s.AccessToken, nil
	}

	next, err := m.refreshLocked(ctx)
	if err != nil {
		if common.IsRetryable(err) && s.ExpiresAt.After(m.now()) {
			return s.AccessToken, nil
		}
		return "", err
	}
	return next.AccessToken, nil
}

// RefreshAccessToken forces a refresh, used after the server reported the
// token as expired.
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, error) {
	s, err := m.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

func (m *Manager) set(ctx context.Context, s *models.Session, ev Event) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: %w: %w", common.ErrSerialization, err)
	}
	if err := m.store.Put(ctx, common.StorageKeyUserData, b); err != nil {
		return err
	}

	cp := *s
	m.mu.Lock()
	m.current = &cp
	m.mu.Unlock()

	m.listeners.Emit(Change{Event: ev, Session: m.Current()})
	return nil
}

func (m *Manager) clear(ctx context.Context) error {
	if err := m.store.Remove(ctx, common.StorageKeyUserData); err != nil {
		return err
	}

	m.mu.Lock()
	had := m.current != nil
	m.current = nil
	m.mu.Unlock()

	if had {
		m.listeners.Emit(Change{Event: SignedOut})
	}
	return nil
}
