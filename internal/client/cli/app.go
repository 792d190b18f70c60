package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/zelebiz/zelebiz/internal/client/appstate"
	"github.com/zelebiz/zelebiz/internal/client/cache"
	"github.com/zelebiz/zelebiz/internal/client/config"
	"github.com/zelebiz/zelebiz/internal/client/connectivity"
	"github.com/zelebiz/zelebiz/internal/client/kvstore"
	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/client/queue"
	"github.com/zelebiz/zelebiz/internal/client/remote"
	"github.com/zelebiz/zelebiz/internal/client/services"
	"github.com/zelebiz/zelebiz/internal/client/session"
	"github.com/zelebiz/zelebiz/internal/client/syncer"
	"github.com/zelebiz/zelebiz/internal/logging"
)

type sessionService interface {
	Current() *models.Session
	SignUp(ctx context.Context, email, password string, profile models.Profile) (*models.Session, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	SignOut(ctx context.Context) error
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

type mutationService interface {
	Create(ctx context.Context, entity, id string, payload json.RawMessage) (*models.MutationRecord, error)
	Update(ctx context.Context, entity, id string, payload json.RawMessage) (*models.MutationRecord, error)
	Delete(ctx context.Context, entity, id string) (*models.MutationRecord, error)
	Pending(ctx context.Context) ([]models.MutationRecord, error)
	Failed(ctx context.Context) ([]models.MutationRecord, error)
	Discard(ctx context.Context, id string) error
	Resubmit(ctx context.Context, id string, payload json.RawMessage) error
	SyncNow(ctx context.Context) (syncer.Report, error)
	Get(ctx context.Context, entity, id string) (*models.CacheEntry, error)
	PendingCount(ctx context.Context) (int, error)
	Quarantined(ctx context.Context) ([]queue.QuarantinedRecord, error)
}

type settingsStore interface {
	DarkMode() bool
	SetDarkMode(ctx context.Context, on bool) error
	ActiveModules() []string
	ToggleModule(ctx context.Context, id string) (bool, error)
}

type onlineChecker interface {
	Current() bool
	Run(ctx context.Context)
}

type housekeeper interface {
	Run(ctx context.Context) (services.HousekeepingReport, error)
	Loop(ctx context.Context, interval time.Duration)
}

// App is the client process: every component plus the REPL state.
type App struct {
	config *config.Config
	logger logging.Logger

	session     sessionService
	mutations   mutationService
	settings    settingsStore
	online      onlineChecker
	housekeeper housekeeper

	// Nil in tests.
	syncer *syncer.Synchronizer
	closer func() error

	reader *bufio.Reader
}

// NewApp opens the local store and wires the client components. An empty
// DatabasePath keeps all state in memory.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewTextLogger(os.Stderr, c.LogLevel)

	store, err := openStore(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	state := appstate.New(store)
	if err := state.Load(ctx); err != nil {
		logger.Warn(ctx, "settings not restored", "error", err)
	}

	rc, err := remote.New(c.Transport, c.ServerEndpointAddr, c.HTTPBaseURL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sess := session.NewManager(store, rc, logger)
	if err := sess.Load(ctx); err != nil {
		logger.Warn(ctx, "session not restored", "error", err)
	}
	rc.SetTokenSource(sess)

	oracle := connectivity.NewOracle(state, rc, c.OnlineCheckInterval, c.ProbeTimeout, logger)
	ch := cache.New(store, rc, oracle, c.CacheMaxAge, c.CacheGCAge, logger)
	q := queue.New(store, logger)
	s := syncer.New(q, rc, oracle, ch, syncer.Options{
		Concurrency:    c.SyncConcurrency,
		MaxAttempts:    c.MaxAttempts,
		BaseDelay:      c.RetryBaseDelay,
		MaxDelay:       c.RetryMaxDelay,
		RequestTimeout: c.RequestTimeout,
		SyncInterval:   c.SyncInterval,
	}, logger)
	hk := services.NewHousekeeper(q, ch, rc, oracle, services.HousekeeperOptions{
		Retention: c.SyncedRetention,
		Archive:   c.ArchiveSynced,
	}, logger)

	// A fresh token may unblock records released as unauthorized.
	sess.OnChange(func(ch session.Change) {
		if ch.Event == session.SignedIn || ch.Event == session.TokenRefreshed {
			s.Trigger()
		}
	})

	return &App{
		config:      c,
		logger:      logger,
		session:     sess,
		mutations:   services.NewMutationService(q, ch, s, logger),
		settings:    state,
		online:      oracle,
		housekeeper: hk,
		syncer:      s,
		closer: func() error {
			return multierr.Combine(rc.Close(), store.Close())
		},
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

func openStore(ctx context.Context, path string) (kvstore.Store, error) {
	if path == "" {
		return kvstore.NewMemoryStore(), nil
	}
	return kvstore.Open(ctx, path)
}

// Run starts the background components and the REPL, and tears everything
// down when the user exits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.online.Run(ctx)
	if err := a.syncer.Start(ctx); err != nil {
		return err
	}
	go a.housekeeper.Loop(ctx, a.config.HousekeepingInterval)

	a.Root(ctx)

	cancel()
	<-a.syncer.Done()
	return a.Close()
}

func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

func (a *App) isLoggedIn() bool {
	return a.session != nil && a.session.Current() != nil
}

func (a *App) getStatus() string {
	s := ""
	if a.isLoggedIn() {
		s = a.session.Current().User.Email + " "
	}
	if a.online != nil {
		if a.online.Current() {
			s += "online"
		} else {
			s += "offline"
		}
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root runs the REPL on stdin until exit.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to zelebiz CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
}
