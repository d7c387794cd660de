package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodfilms/picky/internal/index"
	"github.com/goodfilms/picky/internal/scheduler"
	"github.com/goodfilms/picky/pkg/config"
	"github.com/goodfilms/picky/pkg/kafka"
	"github.com/goodfilms/picky/pkg/logger"
	"github.com/goodfilms/picky/pkg/metrics"
	"github.com/goodfilms/picky/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/picky.yaml", "path to config file")
	sequential := flag.Bool("sequential", false, "index categories one after another")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *sequential {
		cfg.Scheduler.Parallel = false
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New(nil)
	backend, err := index.OpenBackend(cfg.Index)
	if err != nil {
		return err
	}
	if backend.Kind() == index.KindMemory {
		slog.Warn("memory bundles are dropped when the indexer exits; use the disk or bolt backend to share them")
	}
	source, closer, err := index.OpenSource(ctx, cfg.Index, cfg.Postgres)
	if err != nil {
		return err
	}
	defer closer.Close()

	idx, err := index.New(cfg.Index.Name, source, cfg.Index.Categories, backend, index.WithMetrics(m))
	if err != nil {
		return err
	}
	sched := scheduler.New(cfg.Scheduler, scheduler.WithMetrics(m))

	slog.Info("indexing",
		"index", idx.Name(),
		"categories", idx.Categories(),
		"backend", backend.Kind(),
		"source", cfg.Index.Source.Kind,
	)
	start := time.Now()
	if err := idx.Build(ctx, sched); err != nil {
		return err
	}
	slog.Info("indexing finished", "index", idx.Name(), "duration", time.Since(start))

	if !cfg.Kafka.Enabled {
		return nil
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()
	event := idx.CompleteEvent(string(sched.Mode()))
	err = resilience.Retry(ctx, "publish index-complete", resilience.RetryConfig{}, func(ctx context.Context) error {
		return producer.Publish(ctx, kafka.Event{Key: idx.Name(), Value: event})
	})
	if err != nil {
		return err
	}
	slog.Info("index-complete event published", "build_id", event.BuildID, "topic", cfg.Kafka.Topics.IndexComplete)
	return nil
}
