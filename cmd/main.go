package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/trunov/mediafinalizer/internal/app"
	"github.com/trunov/mediafinalizer/internal/config"
	"github.com/trunov/mediafinalizer/internal/logger"
)

const defaultConfigFile = "config.json"

var version = "dev"

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	file := flag.String("config", "", "path to the JSON config file")
	flag.Parse()

	path := *file
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		path = defaultConfigFile
	}

	cfg := config.NewConfig()
	if err := cfg.Read(path); err != nil {
		log.Fatal(err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := initSentry(&cfg.Sentry, version); err != nil {
		lg.Fatal("sentry.Init", zap.Error(err))
	}

	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("init app", zap.Error(err))
	}

	if err := a.Run(ctx); err != nil {
		lg.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
