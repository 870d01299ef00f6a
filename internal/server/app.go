// Package server initializes and runs the vault server. It selects the
// storage backend, applies migrations, wires the services and the ledger
// archive, handles graceful shutdown and starts the gRPC endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/config"
	"github.com/minmer/recreatio-sub002/internal/server/ledger"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/memory"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/repomanager"
	"github.com/minmer/recreatio-sub002/internal/server/services"
	"github.com/minmer/recreatio-sub002/internal/sessioncache"

	gs "github.com/minmer/recreatio-sub002/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	services gs.Services
	closers  []func() error
}

var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// openStorage returns the storage selected by the config. For PostgreSQL the
// embedded migrations are applied before the handle is returned.
func openStorage(ctx context.Context, c *config.Config) (services.Storage, func() error, error) {
	switch c.Storage {
	case config.StorageMemory:
		store := memory.NewStore()
		return services.Storage{DB: store, Tx: store, Repos: memory.NewManager()}, func() error { return nil }, nil
	case config.StoragePostgres:
		db, err := openDB(c.DatabaseDSN)
		if err != nil {
			return services.Storage{}, nil, fmt.Errorf("db open error: %w", err)
		}
		repos := repomanager.NewPostgresRepositoryManager()
		if err := repos.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return services.Storage{}, nil, fmt.Errorf("migrations error: %w", err)
		}
		return services.Storage{DB: db, Tx: dbx.NewSQLTransactor(db), Repos: repos}, db.Close, nil
	}
	return services.Storage{}, nil, fmt.Errorf("unknown storage %q", c.Storage)
}

// newExporter builds the ledger archive. It returns nil when no bucket is
// configured, which disables export.
func newExporter(ctx context.Context, c *config.Config, repos repomanager.RepositoryManager) (*ledger.Exporter, error) {
	if c.S3Bucket == "" {
		return nil, nil
	}
	client, err := ledger.NewS3Client(ctx, ledger.S3Config{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client error: %w", err)
	}
	return ledger.NewExporter(repos, client, s3.NewPresignClient(client), c.S3Bucket), nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	st, closeStorage, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}

	exporter, err := newExporter(ctx, c, st.Repos)
	if err != nil {
		_ = closeStorage()
		return nil, err
	}

	cache := sessioncache.New(c.SecretCacheSize, c.SecretCacheTTL)
	svc := gs.Services{
		Accounts: services.NewAccountService(st, cache, c, logger),
		Queries:  services.NewRoleQueryService(st, logger),
		Commands: services.NewRoleCommandService(st, logger),
		Recovery: services.NewRecoveryService(st, logger),
		Ledger:   services.NewLedgerService(st, exporter, c.LedgerOperators, logger),
	}

	return &App{
		config:   c,
		logger:   logger,
		services: svc,
		closers:  []func() error{func() error { cache.Clear(); return nil }, closeStorage},
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.services)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close(ctx context.Context) {
	for _, c := range app.closers {
		if err := c(); err != nil {
			app.logger.Error(ctx, "shutdown error", "error", err)
		}
	}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.Storage)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}
