package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/ledgerlock/pkg/accounts"
	"github.com/platinummonkey/ledgerlock/pkg/api"
	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/config"
	"github.com/platinummonkey/ledgerlock/pkg/notify"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
	"github.com/platinummonkey/ledgerlock/pkg/orgs"
	"github.com/platinummonkey/ledgerlock/pkg/schedule"
	"github.com/platinummonkey/ledgerlock/pkg/storage/postgres"
	"github.com/platinummonkey/ledgerlock/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer cm.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(ctx, cm.Primary()); err != nil {
			logger.WithError(err).Error("failed to run migrations")
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// Redis-backed membership cache is optional; a local LRU still applies
	// when no Redis address is configured.
	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, continuing with local cache only")
			redisClient = nil
		}
	}
	membershipCache := postgres.NewMembershipCache(redisClient, cfg.Cache.LocalSize, cfg.Cache.TTL, logger)

	// Notifier: webhook first, then SMTP, structured log fallback.
	var notifier notify.Notifier = notify.NewLogNotifier(nil)
	switch {
	case cfg.Notify.WebhookURL != "":
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret)
	case cfg.Notify.SMTPAddr != "":
		notifier = notify.NewSMTPNotifier(cfg.Notify.SMTPAddr, cfg.Notify.SMTPFrom, cfg.Notify.BaseURL, nil)
	}

	// Services
	db := cm.Primary()
	recorder := audit.NewPostgresRecorder(db, logger)
	userSvc := users.NewPostgresService(db)
	orgSvc := orgs.NewPostgresService(db, recorder, notifier, logger).WithMembershipCache(membershipCache)
	accountSvc := accounts.NewPostgresService(db, orgSvc, recorder)
	auditStore := audit.NewStore(db)
	authenticator := auth.NewBasicAuthenticator(userSvc)

	server := api.NewServer(userSvc, orgSvc, accountSvc, auditStore, authenticator, logger)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port so they stay reachable
	// when the API listener is saturated.
	health := observability.NewHealthHandler(cfg.Database.Timeout)
	health.Register("postgres", cm.HealthCheck)
	if redisClient != nil {
		health.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	opsMux := http.NewServeMux()
	opsMux.Handle("/healthz", health)
	if cfg.Observability.MetricsEnabled {
		opsMux.Handle("/metrics", observability.MetricsHandler())
	}
	opsServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: opsMux,
	}

	var sweeper *schedule.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper, err = schedule.NewSweeper(orgSvc, cfg.Sweeper.Schedule, logger)
		if err != nil {
			logger.WithError(err).Error("invalid sweeper schedule")
			os.Exit(1)
		}
		sweeper.Start()
		logger.WithField("schedule", cfg.Sweeper.Schedule).Info("invitation sweeper started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("health/metrics server listening")
		if err := opsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		if sweeper != nil {
			sweeper.Stop()
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown incomplete")
		}
		return opsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("stopped")
}
