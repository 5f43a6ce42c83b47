// Package server wires the PhotoDrop backend together: it selects the
// record store backend, starts the HTTP API and the gRPC health service,
// and shuts both down on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/dmitrijs2005/photodrop/internal/server/auth"
	"github.com/dmitrijs2005/photodrop/internal/server/config"
	"github.com/dmitrijs2005/photodrop/internal/server/health"
	"github.com/dmitrijs2005/photodrop/internal/server/httpapi"
	"github.com/dmitrijs2005/photodrop/internal/server/objectstore"
	"github.com/dmitrijs2005/photodrop/internal/server/recordstore"
	"github.com/dmitrijs2005/photodrop/internal/server/submissions"
	"github.com/dmitrijs2005/photodrop/internal/shared"
)

var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	runMigrations = recordstore.RunMigrations
	makeSecret    = shared.MakeRandHexString
	newS3Backend  = func(ctx context.Context, opts objectstore.S3Options) (objectstore.Backend, error) {
		return objectstore.NewS3Backend(ctx, opts)
	}
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	coll    recordstore.Collection
	service *submissions.Service
	gate    *auth.Gate
	closeFn func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	coll, closeFn, err := openCollection(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	secret := c.SecretKey
	if secret == "" {
		if secret, err = makeSecret(32); err != nil {
			_ = closeFn()
			return nil, fmt.Errorf("session secret: %w", err)
		}
		logger.Warn(ctx, "no secret key configured, using an ephemeral one; operator sessions end on restart")
	}

	return &App{
		config:  c,
		logger:  logger,
		coll:    coll,
		service: submissions.NewService(coll, c.ListPageSize, logger),
		gate:    auth.NewGate(c.OperatorPasscode, secret, c.SessionValidityDuration),
		closeFn: closeFn,
	}, nil
}

func openCollection(ctx context.Context, c *config.Config, logger logging.Logger) (recordstore.Collection, func() error, error) {
	noop := func() error { return nil }

	switch c.StoreBackend {
	case config.BackendS3:
		b, err := newS3Backend(ctx, objectstore.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return recordstore.NewFolderCollection(b, c.TargetFolderName, logger), noop, nil

	case config.BackendMemory:
		logger.Warn(ctx, "using in-memory store, submissions are lost on restart")
		return recordstore.NewFolderCollection(objectstore.NewMemoryBackend(nil), c.TargetFolderName, logger), noop, nil

	case config.BackendPostgres:
		db, err := openDB(c.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db open error: %w", err)
		}
		if err := runMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migration error: %w", err)
		}
		return recordstore.NewPostgresCollection(db, c.TargetFolderName), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
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
	s := httpapi.NewServer(httpapi.Options{
		Addr:           app.config.EndpointAddrHTTP,
		MaxUploadBytes: app.config.MaxUploadBytes,
		AllowedOrigin:  app.config.AllowedOrigin,
	}, app.service, app.gate, app.logger)

	if err := s.Serve(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHealthServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := health.NewServer(app.config.EndpointAddrHealth, app.service.Ready, 0, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives, ctx is cancelled or one of
// the servers fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.StoreBackend, "folder", app.config.TargetFolderName)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.EndpointAddrHealth != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startHealthServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	if err := app.closeFn(); err != nil {
		app.logger.Error(context.Background(), "close store", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
