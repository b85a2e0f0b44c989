package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/tokenguard/internal/app"
	"github.com/dropDatabas3/tokenguard/internal/config"
	"github.com/dropDatabas3/tokenguard/internal/http/api"
	"github.com/dropDatabas3/tokenguard/internal/metrics"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
	"github.com/dropDatabas3/tokenguard/internal/util"
)

var version = "dev"

func main() {
	var (
		flagConfig  = flag.String("config", "", "ruta a config.yaml (vacío: sólo env)")
		flagEnvFile = flag.String("env-file", ".env", "ruta a .env")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		// sin .env seguimos con el entorno del proceso
		_ = godotenv.Load(*flagEnvFile)
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = version
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, Node: cfg.App.Node, Version: cfg.App.Version})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if err := run(cfg); err != nil {
		log.Error("tokenguard stopped", logger.Err(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log := logger.L()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("tokenguard starting",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("dsn", util.MaskDSN(cfg.Storage.DSN)),
		zap.String("cache", cfg.Cache.Driver),
		zap.Strings("audit_modules", cfg.Audit.Modules),
		zap.Bool("scheduler", cfg.Scheduler.Enabled))
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("close", logger.Err(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Serve(gctx, api.ServerConfig{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
			WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
		}, c.Handler())
	})
	if cfg.Scheduler.Enabled {
		g.Go(func() error {
			return c.Runner.Loop(gctx, cfg.App.Node, config.Duration(cfg.Scheduler.Tick))
		})
	}
	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
