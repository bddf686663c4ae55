// Package server initializes and runs the token lifecycle server.
// It opens the database, applies migrations, wires the services and
// starts the HTTP API with graceful shutdown on OS signals.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/avdeev-m/tokenkeeper/internal/logging"
	"github.com/avdeev-m/tokenkeeper/internal/server/config"
	"github.com/avdeev-m/tokenkeeper/internal/server/httpapi"
	"github.com/avdeev-m/tokenkeeper/internal/server/shared/db"
	"github.com/avdeev-m/tokenkeeper/internal/server/tokens"
	"github.com/avdeev-m/tokenkeeper/internal/server/users"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	tokenService *tokens.Service
	userService  *users.Service
	closeDB      func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	pool, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := db.RunMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	ts := tokens.NewService(pool, tokens.PostgresFactory, logger, cfg)
	us := users.NewService(users.NewPostgresRepository(pool), ts)

	return &App{
		config:       cfg,
		logger:       logger,
		tokenService: ts,
		userService:  us,
		closeDB:      pool.Close,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	h := httpapi.NewHandler(app.logger, app.tokenService, app.userService)
	s := httpapi.NewServer(app.config.EndpointAddr, app.logger, h)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.closeDB(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
