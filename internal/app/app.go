// Package app собирает приложение: хранилище, сервис заказов, REST API,
// HTTP-эндпоинты метрик и проверок, outbox worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/orderdesk/internal/api"
	healthcheck "github.com/vladislavdragonenkov/orderdesk/internal/health"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderdesk/internal/version"
)

// Run запускает приложение и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer deps.close(logger)

	orderMetrics := metrics.NewOrderMetrics()
	svc := orders.NewService(deps.orders, deps.products, logger.WithField("layer", "service"), orderMetrics)

	if cfg.SeedDemoData {
		seeder := orders.NewSeeder(deps.orders, deps.products, cfg.SeedRandom, logger.WithField("layer", "seeder"), orderMetrics)
		if _, err := seeder.SeedIfEmpty(ctx, cfg.SeedProducts, cfg.SeedOrders); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	pubs := initOutboxPublishers(cfg, logger)
	defer pubs.close(logger)

	worker := outbox.NewWorker(deps.outboxRepo, pubs.main, outbox.Config{
		PollInterval:   cfg.OutboxPollInterval,
		BatchSize:      cfg.OutboxBatchSize,
		MaxAttempts:    cfg.OutboxMaxAttempts,
		RetryBaseDelay: cfg.OutboxRetryDelay,
		DeadLetters:    pubs.dlq,
	}, logger.WithField("layer", "outbox"), metrics.NewOutboxMetrics())

	healthHandler := healthcheck.NewHandler(version.Current().Version)
	healthHandler.Register("storage", healthcheck.Ping(deps.store))
	healthHandler.Register("outbox", healthcheck.OutboxBacklog(deps.outboxRepo, cfg.OutboxMaxLag, nil))

	apiServer := api.NewServer(svc, cfg.CORS(), logger.WithField("layer", "http"), metrics.NewHTTPMetrics())
	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsMux(healthHandler),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("REST API слушает %s", cfg.HTTPAddr)
		return serveHTTP(apiSrv)
	})
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Infof("метрики доступны по адресу %s/metrics", cfg.MetricsAddr)
			logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", cfg.MetricsAddr, cfg.MetricsAddr, cfg.MetricsAddr)
			return serveHTTP(metricsSrv)
		})
	}
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем HTTP серверы")
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newMetricsMux собирает служебный HTTP: /metrics, /healthz, /livez, /readyz.
func newMetricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.Live)
	mux.HandleFunc("/readyz", healthHandler.Ready)
	return mux
}

// serveHTTP слушает srv.Addr; штатная остановка через Shutdown не считается ошибкой.
func serveHTTP(srv *http.Server) error {
	lis, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", srv.Addr, err)
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
