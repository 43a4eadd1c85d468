package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certify/internal/platform/config"
	"certify/internal/platform/httpserver"
	"certify/internal/platform/kafka"
	"certify/internal/platform/logger"
	platformmetrics "certify/internal/platform/metrics"
	"certify/internal/platform/otel"
	"certify/internal/platform/postgres"
	"certify/internal/platform/redis"
	"certify/internal/registry/cache"
	"certify/internal/registry/faucet"
	"certify/internal/registry/handler"
	"certify/internal/registry/ledger"
	"certify/internal/registry/metrics"
	"certify/internal/registry/projection"
	"certify/internal/registry/store/memory"
	pgstore "certify/internal/registry/store/postgres"
	"certify/pkg/domain"
	"certify/pkg/platform/httputil"
)

const serviceName = "certify"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/registry.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	db        *sql.DB
	redis     *redis.Client
	publisher *kafka.Publisher
}

func (i *infra) close(log *slog.Logger) {
	if i.publisher != nil {
		i.publisher.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("failed to close postgres", "error", err)
		}
	}
}

// health pings every configured backend.
func (i *infra) health(ctx context.Context) error {
	var errs []error
	if i.db != nil {
		errs = append(errs, i.db.PingContext(ctx))
	}
	if i.redis != nil {
		errs = append(errs, i.redis.Health(ctx))
	}
	if i.publisher != nil {
		errs = append(errs, i.publisher.Health(ctx))
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := otel.Setup(ctx, serviceName, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registryMetrics := metrics.New(reg)
	httpMetrics := platformmetrics.New(reg)

	deps := &infra{}
	defer deps.close(log)

	var store ledger.Store = memory.New()
	if deps.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return err
	}
	if deps.db != nil {
		pg := pgstore.New(deps.db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
		log.Info("ledger store: postgres")
	} else {
		log.Warn("ledger store: in-memory, state is lost on restart")
	}

	ledgerOpts := []ledger.Option{
		ledger.WithLogger(log),
		ledger.WithMetrics(registryMetrics),
	}
	if deps.publisher, err = kafka.NewPublisher(ctx, cfg.Kafka, log); err != nil {
		return err
	}
	if deps.publisher != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(deps.publisher))
		log.Info("publishing ledger events", "topic", cfg.Kafka.Topic)
	}

	var faucetAccount domain.AccountID
	if cfg.Registry.FaucetAccount != "" {
		if faucetAccount, err = domain.ParseAccountID(cfg.Registry.FaucetAccount); err != nil {
			return err
		}
		ledgerOpts = append(ledgerOpts, ledger.WithDelegate(faucetAccount))
	}

	svc := ledger.New(store, ledgerOpts...)

	if cfg.Registry.BootstrapAdmin != "" {
		admin, err := domain.ParseAccountID(cfg.Registry.BootstrapAdmin)
		if err != nil {
			return err
		}
		if err := svc.Bootstrap(ctx, admin); err != nil {
			return err
		}
		log.Info("bootstrap admin ensured", "account_id", admin.String())
	}

	engineOpts := []projection.Option{
		projection.WithWindow(cfg.Projection.Window),
		projection.WithDirectoryConcurrency(cfg.Projection.DirectoryConcurrency),
		projection.WithLogger(log),
		projection.WithMetrics(registryMetrics),
	}
	switch {
	case cfg.Redis.URL == "":
	case deps.db == nil:
		// An in-memory ledger restarts token ids from 0 with a new instance
		// id, so cached entries could never be read again.
		log.Warn("credential cache disabled: requires the postgres ledger store")
	default:
		if deps.redis, err = redis.New(ctx, cfg.Redis); err != nil {
			return err
		}
		credentials, err := cache.NewCredentials(ctx, deps.redis.Client, svc,
			cache.WithTTL(cfg.Redis.CacheTTL),
			cache.WithLogger(log),
			cache.WithMetrics(registryMetrics),
		)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, projection.WithCredentialSource(credentials))
		log.Info("credential cache enabled")
	}
	engine := projection.New(svc, engineOpts...)

	handlerOpts := []handler.Option{
		handler.WithLogger(log),
		handler.WithMetrics(httpMetrics),
	}
	if !faucetAccount.IsNil() {
		f := faucet.New(svc, faucetAccount,
			faucet.WithLogger(log),
			faucet.WithMetrics(registryMetrics),
			faucet.WithIssuerName(cfg.Registry.FaucetIssuerName),
		)
		handlerOpts = append(handlerOpts, handler.WithFaucet(f))
	}

	router := chi.NewRouter()
	handler.New(svc, engine, handlerOpts...).Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.health(pingCtx); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting certify", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
