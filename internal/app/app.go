package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trunov/mediafinalizer/cmd/migrate"
	"github.com/trunov/mediafinalizer/internal/auth"
	"github.com/trunov/mediafinalizer/internal/awscreds"
	"github.com/trunov/mediafinalizer/internal/cache"
	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/entities"
	"github.com/trunov/mediafinalizer/internal/jobs"
	"github.com/trunov/mediafinalizer/internal/metrics"
	"github.com/trunov/mediafinalizer/internal/objectstore"
	"github.com/trunov/mediafinalizer/internal/queue"
	"github.com/trunov/mediafinalizer/internal/redisholder"
	"github.com/trunov/mediafinalizer/internal/repository/storage"
	"github.com/trunov/mediafinalizer/internal/transport/handler"
	"github.com/trunov/mediafinalizer/internal/transport/router"
	use_case "github.com/trunov/mediafinalizer/internal/use-case"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	HttpServer *http.Server
	logger     *zap.Logger
	closeFn    func()
}

// New wires every component. ctx bounds the background redis health loop,
// so it should live as long as the process.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.Database.MigrateOnStart {
		if err := migrate.Migrate(ctx, cfg.Database.DSN, migrate.Migrations); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var (
		redisSrc  queue.ClientSource
		roleCache auth.RoleCache
	)
	if cfg.Redis.Enabled() {
		holder, err := redisholder.Build(ctx, &cfg.Redis, logger)
		if err != nil {
			repo.Close()
			return nil, err
		}
		redisSrc = holder
		roleCache = cache.NewCache("mediafinalizer:members", holder)
	}

	storeCreds, err := awscreds.New(ctx, cfg.ObjectStore.Credentials, cfg.ObjectStore.Region)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("object store credentials: %w", err)
	}
	queueCreds, err := awscreds.New(ctx, cfg.Queue.Credentials, cfg.Queue.Region)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("queue credentials: %w", err)
	}

	dispatcher, err := queue.New(&cfg.Queue, queueCreds, redisSrc, logger, m)
	if err != nil {
		repo.Close()
		return nil, err
	}

	uc := use_case.New(
		auth.New(cfg.Auth, repo, roleCache, logger),
		repo,
		objectstore.NewVerifier(&cfg.ObjectStore, storeCreds, logger, m),
		jobs.New(repo, logger),
		dispatcher,
		cfg.ObjectStore.Bucket,
		entities.JobType(cfg.Finalize.JobType),
		logger,
		m,
	)

	h := handler.New(uc, repo, cfg, logger)
	r := router.NewRouter(h, cfg.Server.AllowedOrigins, reg)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return &App{
		HttpServer: s,
		logger:     logger,
		closeFn:    repo.Close,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	defer a.closeFn()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting server", zap.String("addr", a.HttpServer.Addr))
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.HttpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
