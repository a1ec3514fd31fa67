package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trogers1052/stock-alert-system/internal/alerts"
	"github.com/trogers1052/stock-alert-system/internal/api"
	"github.com/trogers1052/stock-alert-system/internal/cache"
	"github.com/trogers1052/stock-alert-system/internal/config"
	"github.com/trogers1052/stock-alert-system/internal/database"
	"github.com/trogers1052/stock-alert-system/internal/eligibility"
	"github.com/trogers1052/stock-alert-system/internal/kafka"
	"github.com/trogers1052/stock-alert-system/internal/logger"
	"github.com/trogers1052/stock-alert-system/internal/market"
	"github.com/trogers1052/stock-alert-system/internal/metrics"
	"github.com/trogers1052/stock-alert-system/internal/notify"
	"github.com/trogers1052/stock-alert-system/internal/scheduler"
	"github.com/trogers1052/stock-alert-system/internal/tracing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "stock-alert-system"

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Error("service stopped with error", zap.Error(err))
		zl.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer(ctx, serviceName, cfg.Tracing.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			zl.Warn("failed to shut down tracer", zap.Error(err))
		}
	}()

	m := metrics.New()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()
	zl.Info("connected to database", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	if cfg.Database.MigrationsDir != "" {
		if err := db.Migrate(cfg.Database.MigrationsDir); err != nil {
			return err
		}
		zl.Info("database migrations applied", zap.String("dir", cfg.Database.MigrationsDir))
	}

	// Redis is optional: without it there is no cross-instance pass lock,
	// name cache or shared rate limit
	var lock scheduler.Locker
	var marketOpts []market.Option
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		lock = cache.NewPassLock(rdb, "stock-alerts:pass-lock", cfg.Alerts.LockTTL)
		marketOpts = append(marketOpts,
			market.WithNameCache(cache.NewNameCache(rdb, cfg.Finnhub.NameCacheTTL, m)),
			market.WithLimiter(cache.NewRateLimiter(rdb, "stock-alerts:finnhub", cfg.Finnhub.RequestsPerMin)),
		)
		zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	gateway := market.NewFinnhubClient(cfg.Finnhub.BaseURL, cfg.Finnhub.APIKey, zl.Named("market"), marketOpts...)

	gate := eligibility.NewGate(db, zl.Named("eligibility"), m, eligibility.Options{
		CacheTTL:         cfg.Eligibility.CacheTTL,
		CleanupInterval:  cfg.Eligibility.CleanupInterval,
		FailureThreshold: cfg.Eligibility.FailureThreshold,
		Cooldown:         cfg.Eligibility.Cooldown,
		LookupTimeout:    cfg.Alerts.CallTimeout,
	})
	links := notify.NewLinkSigner(cfg.Server.BaseURL, cfg.Eligibility.LinkSecret, cfg.Eligibility.LinkTTL)
	transport, err := notify.NewSMTPTransport(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	if err != nil {
		return err
	}
	notifier, err := notify.NewNotifier(gate, transport, links, cfg.SMTP.From, zl.Named("notify"))
	if err != nil {
		return err
	}

	var publisher alerts.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, m)
		defer producer.Close()
		publisher = producer
	}

	engine := alerts.NewEngine(db, gateway, notifier, publisher, zl.Named("alerts"), m, alerts.Options{
		Concurrency: cfg.Alerts.Concurrency,
		CallTimeout: cfg.Alerts.CallTimeout,
		ClaimTTL:    cfg.Alerts.ClaimTTL,
	})
	runner := scheduler.NewRunner(engine, lock, cfg.Alerts.Interval, zl.Named("scheduler"), m)

	handler := api.NewHandler(db, runner, links, zl.Named("api"))
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(handler, m.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		zl.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return runner.Run(gctx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewTriggerConsumer(cfg.Kafka.Brokers, cfg.Kafka.TriggerTopic, cfg.Kafka.GroupID,
			runner, scheduler.SourceKafka, zl.Named("kafka"))
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}

	runner.Trigger(scheduler.SourceStartup)

	return g.Wait()
}
