package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"golang.org/x/sync/errgroup"

	"kora/backend/internal/app"
	"kora/backend/internal/config"
	"kora/backend/internal/logger"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	deps, err := app.Bootstrap(cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	slog.Info("migrations applied successfully")

	application, err := app.New(cfg, deps.DB, deps.NSQProducer)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	// Ingestion consumer: one source per message, handled by the orchestrator.
	taskConsumer, err := nsq.NewConsumer(config.TopicIngestTask, "backend", nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create ingest task consumer", "error", err)
		os.Exit(1)
	}
	taskConsumer.AddHandler(application.Orchestrator)

	// Progress consumer feeds the in-process hub behind the SSE endpoint.
	progressConsumer, err := nsq.NewConsumer(config.TopicIngestProgress, "backend", nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create progress consumer", "error", err)
		os.Exit(1)
	}
	progressConsumer.AddHandler(application.Hub)

	if err := taskConsumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect task consumer to NSQLookupd", "error", err)
		os.Exit(1)
	}
	if err := progressConsumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect progress consumer to NSQLookupd", "error", err)
		os.Exit(1)
	}
	slog.Info("NSQ consumers connected", "lookupd", cfg.NSQLookupd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		taskConsumer.Stop()
		progressConsumer.Stop()
		deps.NSQProducer.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
