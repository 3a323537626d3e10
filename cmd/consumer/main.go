package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"example.com/trackme/internal/cache"
	"example.com/trackme/internal/calendar"
	"example.com/trackme/internal/config"
	"example.com/trackme/internal/consumer"
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
		log.Fatal("trackme-consumer stopped", "error", err)
	}
	log.Info("trackme-consumer shut down")
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	backend, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	trackerOpts := []tracking.Option{tracking.WithLogger(log)}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("summary cache invalidation disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rdb.Close()
			inv := weekly.NewInvalidator(cache.NewSummaryCache(rdb, cfg.SummaryCacheTTL), calendar.New(cfg.Location()))
			trackerOpts = append(trackerOpts, tracking.WithInvalidator(inv))
		}
	}
	tracker := tracking.NewTracker(backend.Store, backend.Store, trackerOpts...)
	handler := consumer.NewTrackingHandler(tracker, log)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.FixTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(log))

	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consumer metrics listening", "addr", cfg.MetricsAddress)
		return httptransport.Run(gctx, metricsSrv, metricsCfg.ShutdownTimeout)
	})
	g.Go(func() error {
		log.Info("consumer started", "topic", cfg.FixTopic, "group", cfg.ConsumerGroupID, "driver", backend.Driver)
		if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consumer: %w", err)
		}
		return nil
	})
	return g.Wait()
}
