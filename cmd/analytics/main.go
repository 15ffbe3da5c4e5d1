package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/storefront-otel/internal/analytics"
	"github.com/joao-fontenele/storefront-otel/internal/config"
	"github.com/joao-fontenele/storefront-otel/internal/messaging"
	"github.com/joao-fontenele/storefront-otel/internal/telemetry"
)

var service = telemetry.Service{Name: "storefront-analytics", Version: "0.1.0"}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadAnalytics(os.Getenv)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, service, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(service)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL, telemetry.Pool{MaxOpen: 10, MaxIdle: 2})
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	repo := analytics.NewRepository(db)
	recorder := analytics.NewRecorder(repo, logger)

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.CartEventsTopic, cfg.ConsumerGroup, logger)
	defer func() { _ = consumer.Close() }()

	mux := http.NewServeMux()
	analytics.NewHandler(repo, logger).Register(mux)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.ServerHandler(telemetry.WithHTTPRoute(mux), service.Name),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting analytics consumer", "brokers", cfg.KafkaBrokers, "topic", cfg.CartEventsTopic)
		err := consumer.Consume(gctx, recorder.Handle)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("starting analytics service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("analytics service stopped", "error", err)
		os.Exit(1)
	}
}
