package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"babbel_syncer/internal/babbel"
	"babbel_syncer/internal/config"
	"babbel_syncer/internal/domain"
	"babbel_syncer/internal/engine"
	"babbel_syncer/internal/generator"
	"babbel_syncer/internal/jobs"
	"babbel_syncer/internal/queue"
	"babbel_syncer/internal/scheduler"
	"babbel_syncer/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	checkOnly := flag.Bool("check", false, "test the Babbel API connection and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	babbelClient := babbel.New(babbel.Config{
		BaseURL:         cfg.Babbel.BaseURL,
		Username:        cfg.Babbel.Username,
		Password:        cfg.Babbel.Password,
		Timeout:         cfg.Babbel.Timeout,
		SessionValidity: cfg.Babbel.SessionValidity,
		SessionMargin:   cfg.Babbel.SessionMargin,
	}, logger)

	if *checkOnly {
		res := babbelClient.TestConnection(context.Background())
		fmt.Println(res.Message)
		if !res.OK {
			os.Exit(1)
		}
		return
	}

	loc, err := cfg.Sync.Location()
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Sync.Timezone, "error", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := queue.NewRabbitMQ(queue.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		JobsQueue:  cfg.RabbitMQ.JobsQueue,
		JobsKey:    cfg.RabbitMQ.JobsKey,
		EventQueue: cfg.RabbitMQ.EventQueue,
		EventKey:   cfg.RabbitMQ.EventKey,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	stateStore := postgres.NewStoryStateStore(db)
	stateStore.OnChange = func(old, new *domain.StoryState) {
		logger.Info("story state changed",
			"item_id", new.ItemID,
			"from", old.Status,
			"to", new.Status,
			"message", new.Message,
		)
	}
	contentStore := postgres.NewContentStore(db)
	jobStore := postgres.NewPendingJobStore(db)

	gen := generator.New(generator.Config{
		BaseURL:        cfg.Generator.BaseURL,
		APIKey:         cfg.Generator.APIKey,
		Model:          cfg.Generator.Model,
		TitlePrompt:    cfg.Generator.TitlePrompt,
		SpeechPrompt:   cfg.Generator.SpeechPrompt,
		Timeout:        cfg.Generator.Timeout,
		MaxAttempts:    cfg.Generator.MaxAttempts,
		InitialBackoff: cfg.Generator.InitialBackoff,
	}, logger)

	jobScheduler := jobs.NewScheduler(jobStore, rabbitMQ, logger)

	eng := engine.New(
		stateStore,
		contentStore,
		jobScheduler,
		babbelClient,
		gen,
		logger,
		engine.Config{
			StartOffsetDays: *cfg.Sync.StartOffsetDays,
			EndOffsetDays:   *cfg.Sync.EndOffsetDays,
			Weekdays:        cfg.Sync.Weekdays.Selection(),
			Location:        loc,
			StoryStatus:     cfg.Babbel.DefaultStatus,
		},
	)

	worker := jobs.NewWorker(rabbitMQ, jobStore, eng, logger)
	sched := scheduler.NewScheduler(eng, contentStore, cfg.Sync.ReconcileInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting babbel syncer",
		"reconcile_interval", cfg.Sync.ReconcileInterval,
		"start_offset_days", *cfg.Sync.StartOffsetDays,
		"end_offset_days", *cfg.Sync.EndOffsetDays,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		return rabbitMQ.ConsumeEvents(gctx, func(ctx context.Context, ev domain.ChangeEvent) {
			if err := eng.HandleChange(ctx, ev); err != nil {
				logger.Error("change event failed", "item_id", ev.ItemID, "error", err)
			}
		})
	})
	g.Go(func() error {
		return sched.Start(gctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("syncer error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
