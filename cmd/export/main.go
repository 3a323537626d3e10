package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/trackme/internal/config"
	"example.com/trackme/internal/export"
	"example.com/trackme/internal/platform/logger"
	"example.com/trackme/internal/storage"
)

func main() {
	cfg := config.Load()

	userID := flag.String("user", "", "user id whose track is exported")
	dir := flag.String("dir", cfg.ExportDir, "directory the export file is written to")
	flag.Parse()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *userID == "" {
		log.Fatal("missing -user flag")
	}

	if err := run(cfg, *userID, *dir, log); err != nil {
		log.Fatal("export failed", "user_id", *userID, "error", err)
	}
}

func run(cfg config.Config, userID, dir string, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	exporter := export.NewExporter(backend.Store, dir, cfg.Location(), log)
	result, err := exporter.Export(ctx, userID, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(result.Path)
	return nil
}
