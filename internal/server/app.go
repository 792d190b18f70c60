// Package server wires the sync server: Postgres storage, the services, and
// the gRPC and REST transports that share them.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/zelebiz/zelebiz/internal/logging"
	"github.com/zelebiz/zelebiz/internal/server/config"
	"github.com/zelebiz/zelebiz/internal/server/httpapi"
	"github.com/zelebiz/zelebiz/internal/server/repositories/repomanager"
	"github.com/zelebiz/zelebiz/internal/server/services"

	gs "github.com/zelebiz/zelebiz/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	grpc   *gs.GRPCServer
	http   *httpapi.Server
}

// sqlOpen is swapped in tests.
var sqlOpen = sql.Open

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sqlOpen("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	us := services.NewUserService(db, rm, c, logger)
	ms := services.NewMutationService(db, rm, c, logger)
	as := services.NewArchiveService(c, logger)

	g := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, us, ms, as, c.SecretKey)
	h := httpapi.NewServer(c.EndpointAddrHTTP, g, g, logger)

	return &App{config: c, logger: logger, db: db, grpc: g, http: h}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves both transports until a signal arrives or one of them fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(gctx) })
	g.Go(func() error { return app.http.Run(gctx) })

	err := g.Wait()
	if cerr := app.db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		app.logger.Error(ctx, "server stopped", "error", err)
		return err
	}
	app.logger.Info(ctx, "Server stopped")
	return nil
}
