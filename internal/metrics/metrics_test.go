package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCollectors(t *testing.T) {
	before := testutil.ToFloat64(Ticks.WithLabelValues(TickNoChanges))
	Ticks.WithLabelValues(TickNoChanges).Inc()
	if got := testutil.ToFloat64(Ticks.WithLabelValues(TickNoChanges)); got != before+1 {
		t.Errorf("ticks = %v, want %v", got, before+1)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, name := range []string{
		"feed_notifier_ticks_total",
		"feed_notifier_fetch_duration_seconds",
		"feed_notifier_seen_cache_size",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
