package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goRecovery "github.com/MrEthical07/goRecovery"
	"github.com/MrEthical07/goRecovery/directory/postgres"
	"github.com/MrEthical07/goRecovery/httpapi"
	"github.com/MrEthical07/goRecovery/internal/appconfig"
	"github.com/MrEthical07/goRecovery/internal/logger"
	"github.com/MrEthical07/goRecovery/metrics/export/prometheus"
	"github.com/MrEthical07/goRecovery/store/dynamo"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recovery HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger.L)
	},
}

func serve(ctx context.Context, cfg appconfig.Config, log *slog.Logger) error {
	pool, err := postgres.Open(ctx, cfg.Postgres.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	dir := postgres.New(pool, postgres.Options{PrimaryDomain: cfg.Recovery.PrimaryDomain, Logger: log})
	checks := map[string]httpapi.HealthCheck{"postgres": pool.Ping}

	builder := goRecovery.New().
		WithConfig(cfg.EngineConfig()).
		WithDirectory(dir).
		WithAccountStatus(dir).
		WithTenantResolver(dir).
		WithNotificationPolicy(dir).
		WithAuditSink(goRecovery.NewSlogSink(log)).
		WithLogger(log)

	switch cfg.Recovery.Store {
	case appconfig.StoreDynamo:
		client, err := dynamo.NewClient(ctx, dynamo.ClientConfig{
			Region:      cfg.Dynamo.Region,
			EndpointURL: cfg.Dynamo.EndpointURL,
			AccessKeyID: cfg.Dynamo.AccessKeyID,
			SecretKey:   cfg.Dynamo.SecretKey,
		})
		if err != nil {
			return err
		}
		if cfg.Dynamo.CreateTable {
			if err := dynamo.Bootstrap(ctx, client, cfg.Dynamo.Table, log); err != nil {
				return err
			}
		}
		engineCfg := cfg.EngineConfig()
		builder = builder.WithRecoveryStore(dynamo.NewStore(client, dynamo.Config{
			Table:     cfg.Dynamo.Table,
			CodeTTL:   engineCfg.Store.CodeTTL,
			Retention: engineCfg.Store.ExpiredRetention,
		}))
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		builder = builder.WithRedis(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	opts := httpapi.Options{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RateLimit:         cfg.Server.RateLimit,
		RateBurst:         cfg.Server.RateBurst,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		HealthChecks:      checks,
		Logger:            log,
	}
	if cfg.Server.Metrics {
		exporter := prometheus.NewPrometheusExporter(engine)
		opts.Metrics = exporter.Handler()
		opts.Registerer = exporter.Registry()
	}
	api := httpapi.New(engine, opts)
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("addr", cfg.Server.Addr), slog.String("store", cfg.Recovery.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped", slog.Uint64("audit_dropped", engine.AuditDropped()))
	return nil
}
