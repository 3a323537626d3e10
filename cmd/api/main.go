package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/trackme/internal/api"
	"example.com/trackme/internal/auth"
	"example.com/trackme/internal/cache"
	"example.com/trackme/internal/calendar"
	"example.com/trackme/internal/config"
	"example.com/trackme/internal/export"
	"example.com/trackme/internal/health"
	"example.com/trackme/internal/outbox"
	"example.com/trackme/internal/platform/logger"
	"example.com/trackme/internal/storage"
	"example.com/trackme/internal/tracking"
	httptransport "example.com/trackme/internal/transport/http"
	"example.com/trackme/internal/weekly"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("trackme-api stopped", "error", err)
	}
	log.Info("trackme-api shut down")
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	backend, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()
	log.Info("store opened", "driver", backend.Driver)

	loc := cfg.Location()
	cal := calendar.New(loc)
	summaryOpts := []weekly.Option{
		weekly.WithLogger(log),
		weekly.WithRetry(cfg.FetchMaxRetries, nil),
	}
	trackerOpts := []tracking.Option{tracking.WithLogger(log)}
	var healthOpts []health.Option
	if cfg.RedisAddr != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("summary cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rdb.Close()
			summaryCache := cache.NewSummaryCache(rdb, cfg.SummaryCacheTTL)
			inv := weekly.NewInvalidator(summaryCache, cal)
			summaryOpts = append(summaryOpts, weekly.WithCache(summaryCache))
			trackerOpts = append(trackerOpts, tracking.WithInvalidator(inv))
			healthOpts = append(healthOpts, health.WithInvalidator(inv))
		}
	}

	healthSvc := health.NewService(backend.Store, backend.Store, log, healthOpts...)
	handler := api.NewHandler(api.Services{
		Summary:   weekly.NewSummaryService(backend.Store, healthSvc, weekly.NewAggregator(cal), summaryOpts...),
		Tracker:   tracking.NewTracker(backend.Store, backend.Store, trackerOpts...),
		Health:    healthSvc,
		Exporter:  export.NewExporter(backend.Store, cfg.ExportDir, loc, log),
		Locations: backend.Store,
	}, api.WithLogger(log))

	router := handler.Router()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	accessLog := zap.NewStdLog(log.SugaredLogger.Desugar().Named("access")).Writer()
	var root http.Handler = authMiddleware.Wrap(router)
	root = handlers.CombinedLoggingHandler(accessLog, root)
	root = handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(root)
	root = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{log}))(root)

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, root)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("trackme-api listening", "addr", cfg.HTTPAddress)
		return httptransport.Run(gctx, server, serverCfg.ShutdownTimeout)
	})

	if backend.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer func() {
			if err := producer.Close(); err != nil {
				log.Warn("kafka producer close failed", "error", err)
			}
		}()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(backend.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithDispatcherLogger(log))
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
	} else {
		log.Info("outbox dispatcher disabled", "driver", backend.Driver)
	}

	return g.Wait()
}

// recoveryLogger adapts the zap logger to gorilla's RecoveryHandlerLogger.
type recoveryLogger struct {
	log *logger.Logger
}

func (r recoveryLogger) Println(args ...interface{}) {
	r.log.Error("handler panic", "detail", fmt.Sprint(args...))
}
