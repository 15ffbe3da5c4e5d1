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

	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/storefront-otel/internal/analytics"
	"github.com/joao-fontenele/storefront-otel/internal/backend"
	"github.com/joao-fontenele/storefront-otel/internal/cart"
	"github.com/joao-fontenele/storefront-otel/internal/catalog"
	"github.com/joao-fontenele/storefront-otel/internal/checkout"
	"github.com/joao-fontenele/storefront-otel/internal/config"
	"github.com/joao-fontenele/storefront-otel/internal/gateway"
	"github.com/joao-fontenele/storefront-otel/internal/messaging"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
	"github.com/joao-fontenele/storefront-otel/internal/session"
	"github.com/joao-fontenele/storefront-otel/internal/storage"
	"github.com/joao-fontenele/storefront-otel/internal/telemetry"
)

var service = telemetry.Service{Name: "storefront", Version: "0.1.0"}

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadStorefront(os.Getenv)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, service, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(service)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	cartMetrics, err := telemetry.NewCartMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Error("failed to create cart metrics", "error", err)
		os.Exit(1)
	}

	var kv storage.Store = storage.NewMemoryStore()
	if cfg.PostgresURL != "" {
		db, err := telemetry.OpenDB(ctx, cfg.PostgresURL, telemetry.Pool{MaxOpen: 20, MaxIdle: 5, MaxLifetime: 30 * time.Minute})
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		kv = storage.NewPostgresStore(db)
	} else {
		logger.Warn("POSTGRES_URL not set, carts are kept in memory only")
	}

	notifiers := cart.Notifiers{cartMetrics}
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.CartEventsTopic,
			messaging.WithAsync(func(err error) {
				logger.Warn("failed to deliver cart event", "error", err)
			}),
		)
		defer func() { _ = producer.Close() }()
		notifiers = append(notifiers, analytics.NewPublisher(producer))
	}

	api := backend.NewClient(cfg.APIBaseURL, telemetry.HTTPClient(cfg.APITimeout))
	compositor := pricing.NewCompositor(cfg.FreeShippingThreshold)

	carts := cart.NewManager(kv, cart.Options{
		Validator: api,
		Notifier:  notifiers,
		Logger:    logger,
	})
	checkouts := checkout.NewService(carts, kv, api, compositor, checkout.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		Notifier:      notifiers,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	cart.NewHandler(carts, compositor, api, logger).Register(mux)
	checkout.NewHandler(checkouts, logger).Register(mux)
	catalog.NewHandler(
		catalog.NewMenuCache(api, cfg.MenuTTL),
		catalog.NewSearcher(api, catalog.DefaultSearchLimit),
		api,
		logger,
	).Register(mux)
	gateway.NewHandler(gateway.NewServiceProxy(cfg.APIBaseURL, telemetry.HTTPClient(cfg.APITimeout)), logger).Register(mux)

	root := http.NewServeMux()
	root.Handle("GET /metrics", metricsHandler)
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Handle("/", session.Middleware(cfg.SessionCookie, cfg.SecureCookies)(telemetry.WithHTTPRoute(mux)))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.ServerHandler(telemetry.WithHTTPRoute(root), service.Name),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go carts.RunSweeper(sweepCtx, time.Minute, cfg.CartIdleTTL, logger)

	go func() {
		logger.Info("starting storefront service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
