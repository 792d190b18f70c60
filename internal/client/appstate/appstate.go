// Package appstate holds the app-wide client flags: connectivity, theme and
// which business modules are enabled. One AppState is created at startup and
// passed to whoever needs it.
package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zelebiz/zelebiz/internal/client/kvstore"
	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/notify"
)

// DefaultModules are enabled on a fresh install.
var DefaultModules = []string{"inventory", "sales", "customers"}

type AppState struct {
	store kvstore.Store

	mu       sync.RWMutex
	online   bool
	darkMode bool
	modules  []string

	// emitMu keeps transitions and their notifications in the same order.
	emitMu          sync.Mutex
	onlineListeners notify.Set[bool]
}

// New returns an offline state with default settings.
func New(store kvstore.Store) *AppState {
	return &AppState{store: store, modules: slices.Clone(DefaultModules)}
}

// Load restores persisted settings. A missing record keeps the defaults.
func (s *AppState) Load(ctx context.Context) error {
	raw, err := s.store.Get(ctx, common.StorageKeySettings)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var st models.Settings
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("settings: %w: %w", common.ErrSerialization, err)
	}

	s.mu.Lock()
	s.darkMode = st.DarkMode
	if st.ActiveModules != nil {
		s.modules = st.ActiveModules
	}
	s.mu.Unlock()
	return nil
}

func (s *AppState) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// SetOnline stores the flag and notifies listeners if it changed. It reports
// whether it did. Listeners must not call SetOnline.
func (s *AppState) SetOnline(online bool) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()

	if changed {
		s.onlineListeners.Emit(online)
	}
	return changed
}

// OnOnlineChange registers fn for connectivity transitions.
func (s *AppState) OnOnlineChange(fn func(online bool)) (unsubscribe func()) {
	return s.onlineListeners.Subscribe(fn)
}

func (s *AppState) DarkMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.darkMode
}

func (s *AppState) SetDarkMode(ctx context.Context, on bool) error {
	s.mu.Lock()
	s.darkMode = on
	s.mu.Unlock()
	return s.save(ctx)
}

func (s *AppState) ActiveModules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.modules)
}

func (s *AppState) IsModuleActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.modules, id)
}

// ToggleModule enables id if it is disabled and vice versa. It returns the
// new state of the module.
func (s *AppState) ToggleModule(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: empty module id", common.ErrValidation)
	}

	s.mu.Lock()
	active := !slices.Contains(s.modules, id)
	if active {
		s.modules = append(s.modules, id)
	} else {
		s.modules = slices.DeleteFunc(s.modules, func(m string) bool { return m == id })
	}
	s.mu.Unlock()

	return active, s.save(ctx)
}

func (s *AppState) save(ctx context.Context) error {
	s.mu.RLock()
	st := models.Settings{DarkMode: s.darkMode, ActiveModules: slices.Clone(s.modules)}
	s.mu.RUnlock()

	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("settings: %w: %w", common.ErrSerialization, err)
	}
	return s.store.Put(ctx, common.StorageKeySettings, b)
}
