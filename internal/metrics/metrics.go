// Package metrics holds the Prometheus collectors of the feed monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick results.
const (
	TickSkippedInactive = "skipped_inactive"
	TickSkippedCold     = "skipped_cold"
	TickBaseline        = "baseline"
	TickFetchFailed     = "fetch_failed"
	TickNoChanges       = "no_changes"
	TickDelivered       = "delivered"
	TickPanicked        = "panicked"
)

// Delivery results.
const (
	DeliveryOK          = "ok"
	DeliveryTransient   = "transient_error"
	DeliveryUnreachable = "unreachable"
	DeliveryRejected    = "rejected"
	DeliveryDropped     = "dropped"
)

var (
	Ticks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_notifier_ticks_total",
		Help: "Poll ticks by result",
	}, []string{"result"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_notifier_fetch_duration_seconds",
		Help:    "Duration of feed fetches",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
	})

	Changes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_notifier_changes_total",
		Help: "Entries detected as new or edited",
	}, []string{"kind"})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_notifier_seen_cache_size",
		Help: "Identifiers held by the change-detection cache",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_notifier_deliveries_total",
		Help: "Notification deliveries by result",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
