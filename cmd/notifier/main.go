package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"feed_notifier/internal/bot"
	"feed_notifier/internal/config"
	"feed_notifier/internal/fanout"
	"feed_notifier/internal/fetcher"
	"feed_notifier/internal/logging"
	"feed_notifier/internal/metrics"
	"feed_notifier/internal/scheduler"
	"feed_notifier/internal/seen"
	"feed_notifier/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log, logCloser := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer func() { _ = logCloser.Close() }()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	var source *fetcher.Fetcher
	if cfg.FeedEnabled() {
		source = fetcher.New(http.DefaultClient, fetcher.NewNormalizer(cfg.Feed.URL, cfg.Feed.DefaultCategory))
		source.SetTimeout(cfg.Feed.FetchTimeout)
	}

	var entries bot.EntrySource
	if source != nil {
		entries = source
	}
	b, err := bot.New(cfg.TelegramBotToken, store, cfg, entries, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	if source != nil {
		dispatcher := fanout.New(store, b, log, fanout.Options{
			Cap:           cfg.Feed.FanoutCap,
			Delay:         cfg.Feed.MessageDelay,
			Retries:       cfg.Feed.DeliveryRetries,
			DefaultFilter: cfg.Feed.DefaultFilter,
		})
		sched := scheduler.New(source, seen.New(cfg.Feed.CacheCapacity), dispatcher, log, scheduler.Options{
			FeedURL:      cfg.Feed.URL,
			Interval:     cfg.Feed.PollInterval,
			StartupDelay: cfg.Feed.StartupDelay,
			TickTimeout:  cfg.Feed.TickTimeout,
			Active:       cfg.IsPrimary,
		})

		log.Info("starting feed monitor",
			"feed", cfg.Feed.Name,
			"url", cfg.Feed.URL,
			"interval", cfg.Feed.PollInterval,
			"instance", cfg.InstanceIndex,
			"primary", cfg.IsPrimary(),
		)
		go sched.Run(ctx)
	} else {
		log.Warn("FEED_URL not set, feed monitor disabled")
	}

	log.Info("starting bot")

	b.Run(ctx)

	log.Info("bot stopped")
}

func serveMetrics(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}
