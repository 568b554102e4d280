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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/ultimate-parking/internal/app"
	"github.com/cimillas/ultimate-parking/internal/clock"
	"github.com/cimillas/ultimate-parking/internal/config"
	"github.com/cimillas/ultimate-parking/internal/logger"
	"github.com/cimillas/ultimate-parking/internal/metrics"
	"github.com/cimillas/ultimate-parking/internal/storage/postgres"
	redisstore "github.com/cimillas/ultimate-parking/internal/storage/redis"
	transporthttp "github.com/cimillas/ultimate-parking/internal/transport/http"
	"github.com/cimillas/ultimate-parking/migrations"
)

const (
	startupTimeout    = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

type ticketStore interface {
	app.TicketRepository
	app.CashCutRepository
	Ping(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parking-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envPath, envErr := config.LoadEnvFile()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	switch {
	case envErr != nil:
		log.Warn("failed to load .env", "error", envErr)
	case envPath != "":
		log.Info("loaded env file", "path", envPath)
	}

	cal, err := cfg.Calendar()
	if err != nil {
		return err
	}
	ids, err := cfg.IDGenerator()
	if err != nil {
		return err
	}
	secret, err := cfg.SecretVerifier()
	if err != nil {
		return err
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(stopCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New(prometheus.DefaultRegisterer)
	clk := clock.NewSystem()

	tickets := app.NewTicketService(store, clk, cal,
		app.WithTariff(cfg.TariffPolicy()),
		app.WithIDGenerator(ids),
		app.WithTicketLogger(log),
		app.WithTicketMetrics(m),
	)
	cashCut := app.NewCashCutService(store, secret, clk, cal,
		app.WithCashCutLogger(log),
		app.WithCashCutMetrics(m),
	)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: transporthttp.NewRouter(transporthttp.RouterConfig{
			Tickets:     tickets,
			CashCut:     cashCut,
			Store:       store,
			Logger:      log,
			Metrics:     m,
			Gatherer:    prometheus.DefaultGatherer,
			CORSOrigins: cfg.CORSOrigins,
			StaticDir:   cfg.StaticDir,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(stopCtx)
	g.Go(func() error {
		log.Info("api listening", "addr", server.Addr, "store", cfg.StoreDriver, "timezone", cal.Location().String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (ticketStore, func(), error) {
	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StoreRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		repo := redisstore.NewTicketRepository(client)
		if err := repo.Ping(startupCtx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("using redis ticket store")
		return repo, func() { _ = client.Close() }, nil

	default:
		pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to db: %w", err)
		}
		if err := pool.Ping(startupCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		if err := migrations.Apply(startupCtx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("using postgres ticket store")
		return postgres.NewTicketRepository(pool), pool.Close, nil
	}
}
