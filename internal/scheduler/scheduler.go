// Package scheduler drives the poll, detect and fan-out cycle of the feed
// monitor.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed_notifier/internal/fanout"
	"feed_notifier/internal/metrics"
	"feed_notifier/internal/model"
	"feed_notifier/internal/seen"
)

// Defaults used when Options leaves a field unset.
const (
	DefaultInterval     = 5 * time.Minute
	DefaultStartupDelay = 5 * time.Second
)

// EntrySource fetches the normalized entries of a feed.
type EntrySource interface {
	FetchEntries(ctx context.Context, url string) ([]model.Entry, error)
}

// Deliverer fans out detected changes.
type Deliverer interface {
	Deliver(ctx context.Context, changes []model.Change) fanout.Report
}

// Options configures a Scheduler.
type Options struct {
	FeedURL      string
	Interval     time.Duration
	StartupDelay time.Duration
	// TickTimeout bounds a whole tick including fan-out. Zero disables it.
	TickTimeout time.Duration
	// Active reports whether this instance is the single active poller.
	// Nil means always active.
	Active func() bool
}

// Scheduler periodically checks the feed and sends notifications for new and
// edited entries. Ticks never overlap, so the cache has a single writer.
type Scheduler struct {
	source       EntrySource
	cache        *seen.Cache
	deliverer    Deliverer
	log          *slog.Logger
	feedURL      string
	interval     time.Duration
	startupDelay time.Duration
	tickTimeout  time.Duration
	active       func() bool

	started bool
	warm    bool
}

// New creates a Scheduler that owns cache.
func New(source EntrySource, cache *seen.Cache, deliverer Deliverer, log *slog.Logger, opts Options) *Scheduler {
	s := &Scheduler{
		source:       source,
		cache:        cache,
		deliverer:    deliverer,
		log:          log,
		feedURL:      opts.FeedURL,
		interval:     opts.Interval,
		startupDelay: opts.StartupDelay,
		tickTimeout:  opts.TickTimeout,
		active:       opts.Active,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.startupDelay < 0 {
		s.startupDelay = DefaultStartupDelay
	}
	if s.active == nil {
		s.active = func() bool { return true }
	}
	return s
}

// Run starts the scheduler loop, blocking until ctx is cancelled. The
// baseline pass runs after the startup delay; interval ticks before it are
// skipped.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("feed monitor started",
		"url", s.feedURL,
		"interval", s.interval,
		"startup_delay", s.startupDelay,
		"cache_capacity", s.cache.Capacity(),
	)

	startup := time.NewTimer(s.startupDelay)
	defer startup.Stop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("feed monitor stopped")
			return
		case <-startup.C:
			s.begin(ctx)
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// begin ends the startup window and runs the baseline pass.
func (s *Scheduler) begin(ctx context.Context) string {
	s.started = true
	return s.Tick(ctx)
}

// Warm reports whether the baseline pass has completed.
func (s *Scheduler) Warm() bool {
	return s.warm
}

// Tick runs one poll cycle and returns its result label. Failures and panics
// are contained to the tick.
func (s *Scheduler) Tick(ctx context.Context) (result string) {
	if s.tickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.tickTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked", "panic", fmt.Sprint(r))
			result = metrics.TickPanicked
		}
		metrics.Ticks.WithLabelValues(result).Inc()
	}()

	return s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) string {
	if !s.active() {
		s.log.Debug("not the active poller, skipping tick")
		return metrics.TickSkippedInactive
	}
	if !s.warm && !s.started {
		return metrics.TickSkippedCold
	}

	start := time.Now()
	entries, err := s.source.FetchEntries(ctx, s.feedURL)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Warn("fetch feed", "url", s.feedURL, "error", err)
		return metrics.TickFetchFailed
	}
	if len(entries) == 0 {
		s.log.Warn("feed returned no entries", "url", s.feedURL)
		return metrics.TickFetchFailed
	}

	if !s.warm {
		size := s.cache.Baseline(entries)
		s.warm = true
		metrics.CacheSize.Set(float64(size))
		s.log.Info("seen cache warmed", "entries", len(entries), "cached", size)
		return metrics.TickBaseline
	}

	changes := s.cache.Detect(entries)
	metrics.CacheSize.Set(float64(s.cache.Len()))
	if len(changes) == 0 {
		s.log.Debug("no new entries", "fetched", len(entries))
		return metrics.TickNoChanges
	}

	var created, edited int
	for _, c := range changes {
		if c.Kind == model.ChangeEdited {
			edited++
			s.log.Info("detected edit", "entry_id", c.Entry.ID, "title", c.Entry.Title)
		} else {
			created++
		}
	}
	metrics.Changes.WithLabelValues(string(model.ChangeNew)).Add(float64(created))
	metrics.Changes.WithLabelValues(string(model.ChangeEdited)).Add(float64(edited))
	s.log.Info("detected changes", "new", created, "edited", edited)

	s.deliverer.Deliver(ctx, changes)
	return metrics.TickDelivered
}
