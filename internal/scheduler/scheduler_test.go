package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"feed_notifier/internal/fanout"
	"feed_notifier/internal/fetcher"
	"feed_notifier/internal/metrics"
	"feed_notifier/internal/model"
	"feed_notifier/internal/seen"
	"feed_notifier/internal/storage"
)

const testFeedURL = "https://u2.dmhy.org/torrentrss.php"

// --- mocks ---

type sentMessage struct {
	ChatID int64
	Title  string
	Edited bool
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
	fail     map[int64]error
}

func (m *mockSender) Deliver(_ context.Context, chatID int64, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[chatID]; err != nil {
		return err
	}
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Title: n.Title, Edited: n.Edited})
	return nil
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type response struct {
	body string
	err  error
}

// scriptedHTTP replays responses in order and repeats the last one.
type scriptedHTTP struct {
	mu        sync.Mutex
	responses []response
	calls     int
}

func (m *scriptedHTTP) Do(_ *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.responses[min(m.calls, len(m.responses)-1)]
	m.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
	}, nil
}

func (m *scriptedHTTP) push(r response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses[:min(m.calls, len(m.responses))], r)
}

func (m *scriptedHTTP) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type panicDeliverer struct{}

func (panicDeliverer) Deliver(context.Context, []model.Change) fanout.Report {
	panic("boom")
}

// --- helpers ---

type testItem struct {
	id    int
	title string
}

func items(from, to int) []testItem {
	var out []testItem
	for i := to; i >= from; i-- {
		out = append(out, testItem{id: i, title: fmt.Sprintf("[BDMV] Release %02d", i)})
	}
	return out
}

func rss(entries []testItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>U2</title>`)
	for _, it := range entries {
		fmt.Fprintf(&b, `<item><title>%s</title><link>https://u2.dmhy.org/details.php?id=%d</link><guid>hash-%d</guid></item>`,
			it.title, it.id, it.id)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

type harness struct {
	sched  *Scheduler
	cache  *seen.Cache
	http   *scriptedHTTP
	sender *mockSender
	store  *storage.SQLite
}

func newHarness(t *testing.T, responses ...response) *harness {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		cache:  seen.New(500),
		http:   &scriptedHTTP{responses: responses},
		sender: &mockSender{},
		store:  store,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := fetcher.New(h.http, fetcher.NewNormalizer(testFeedURL, ""))
	d := fanout.New(store, h.sender, log, fanout.Options{Cap: 10, Delay: 0})
	h.sched = New(f, h.cache, d, log, Options{FeedURL: testFeedURL})
	return h
}

func (h *harness) subscribe(t *testing.T, chatID int64, filter string) {
	t.Helper()
	sub := &model.Subscriber{ChatID: chatID, Enabled: true, Filter: filter}
	if err := h.store.UpsertSubscriber(context.Background(), sub); err != nil {
		t.Fatalf("upsert subscriber: %v", err)
	}
}

func titles(msgs []sentMessage) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.Title)
	}
	return out
}

// --- tests ---

func TestBaselineEmitsNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{body: rss(items(1, 12))})
	h.subscribe(t, 100, "")

	if diff := cmp.Diff(metrics.TickBaseline, h.sched.begin(ctx)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(12, h.cache.Len()); diff != "" {
		t.Errorf("cache size mismatch (-want +got):\n%s", diff)
	}
	if msgs := h.sender.getMessages(); len(msgs) != 0 {
		t.Errorf("baseline sent %d messages", len(msgs))
	}

	// Identical refetch after the baseline stays silent.
	if diff := cmp.Diff(metrics.TickNoChanges, h.sched.Tick(ctx)); diff != "" {
		t.Errorf("second tick result mismatch (-want +got):\n%s", diff)
	}
	if msgs := h.sender.getMessages(); len(msgs) != 0 {
		t.Errorf("unchanged refetch sent %d messages", len(msgs))
	}
}

func TestTickDeliversOnlyNewEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		response{body: rss(items(1, 9))},
		response{body: rss(items(1, 12))},
	)
	h.subscribe(t, 100, "")

	h.sched.begin(ctx)
	if diff := cmp.Diff(metrics.TickDelivered, h.sched.Tick(ctx)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	want := []string{"[BDMV] Release 12", "[BDMV] Release 11", "[BDMV] Release 10"}
	if diff := cmp.Diff(want, titles(h.sender.getMessages())); diff != "" {
		t.Errorf("delivered titles mismatch (-want +got):\n%s", diff)
	}
}

func TestTickFilterPerSubscriber(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{body: rss([]testItem{{id: 9, title: "Old"}})})
	h.subscribe(t, 100, "1080p")
	h.subscribe(t, 200, "720p")

	h.sched.begin(ctx)
	h.http.push(response{body: rss([]testItem{{id: 1, title: "Violet 1080P"}, {id: 2, title: "K-On 720p"}, {id: 9, title: "Old"}})})
	h.sched.Tick(ctx)

	want := []sentMessage{
		{ChatID: 100, Title: "Violet 1080P"},
		{ChatID: 200, Title: "K-On 720p"},
	}
	if diff := cmp.Diff(want, h.sender.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestTickEditedEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{body: rss([]testItem{{id: 1, title: "Release"}})})
	h.subscribe(t, 100, "")

	h.sched.begin(ctx)

	h.http.push(response{body: rss([]testItem{{id: 1, title: "Release (fixed)"}})})
	h.sched.Tick(ctx)
	h.sched.Tick(ctx)

	want := []sentMessage{{ChatID: 100, Title: "Release (fixed)", Edited: true}}
	if diff := cmp.Diff(want, h.sender.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if title, _ := h.cache.Title("hash-1"); title != "Release (fixed)" {
		t.Errorf("cached title = %q", title)
	}
}

func TestTickFetchFailureHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{body: rss(items(1, 5))})
	h.subscribe(t, 100, "")

	h.sched.begin(ctx)
	before := h.cache.IDs()

	h.http.push(response{err: context.DeadlineExceeded})
	if diff := cmp.Diff(metrics.TickFetchFailed, h.sched.Tick(ctx)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, h.cache.IDs()); diff != "" {
		t.Errorf("cache mutated by failed tick (-want +got):\n%s", diff)
	}
	if msgs := h.sender.getMessages(); len(msgs) != 0 {
		t.Errorf("failed tick sent %d messages", len(msgs))
	}

	h.http.push(response{body: rss(items(1, 6))})
	if diff := cmp.Diff(metrics.TickDelivered, h.sched.Tick(ctx)); diff != "" {
		t.Errorf("recovery result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"[BDMV] Release 06"}, titles(h.sender.getMessages())); diff != "" {
		t.Errorf("recovery titles mismatch (-want +got):\n%s", diff)
	}
}

func TestTickDeliveryFailureIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{body: rss(items(1, 2))})
	h.sender.fail = map[int64]error{100: fmt.Errorf("chat not found: %w", model.ErrTargetUnreachable)}
	h.subscribe(t, 100, "")
	h.subscribe(t, 200, "")

	h.sched.begin(ctx)
	h.http.push(response{body: rss(items(1, 3))})
	h.sched.Tick(ctx)

	want := []sentMessage{{ChatID: 200, Title: "[BDMV] Release 03"}}
	if diff := cmp.Diff(want, h.sender.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestTickSkipsWhenInactive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{body: rss(items(1, 3))})
	h.sched.active = func() bool { return false }

	if diff := cmp.Diff(metrics.TickSkippedInactive, h.sched.begin(ctx)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, h.http.callCount()); diff != "" {
		t.Errorf("inactive poller fetched the feed (-want +got):\n%s", diff)
	}
}

func TestTickSkipsBeforeStartup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{body: rss(items(1, 3))})

	if diff := cmp.Diff(metrics.TickSkippedCold, h.sched.Tick(ctx)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, h.http.callCount()); diff != "" {
		t.Errorf("fetch before startup (-want +got):\n%s", diff)
	}
}

func TestBaselineRetriedAfterFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{err: io.ErrUnexpectedEOF})
	h.subscribe(t, 100, "")

	if diff := cmp.Diff(metrics.TickFetchFailed, h.sched.begin(ctx)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if h.sched.Warm() {
		t.Fatal("scheduler warm after failed baseline")
	}

	h.http.push(response{body: rss(items(1, 8))})
	if diff := cmp.Diff(metrics.TickBaseline, h.sched.Tick(ctx)); diff != "" {
		t.Errorf("retry result mismatch (-want +got):\n%s", diff)
	}
	if msgs := h.sender.getMessages(); len(msgs) != 0 {
		t.Errorf("retried baseline sent %d messages", len(msgs))
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, response{body: rss(items(1, 1))})
	h.sched.deliverer = panicDeliverer{}

	h.sched.begin(ctx)
	h.http.push(response{body: rss(items(1, 2))})

	if diff := cmp.Diff(metrics.TickPanicked, h.sched.Tick(ctx)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(metrics.TickNoChanges, h.sched.Tick(ctx)); diff != "" {
		t.Errorf("tick after panic mismatch (-want +got):\n%s", diff)
	}
}

func TestRun(t *testing.T) {
	h := newHarness(t,
		response{body: rss(items(1, 9))},
		response{body: rss(items(1, 12))},
	)
	h.subscribe(t, 100, "")
	h.sched.startupDelay = time.Millisecond
	h.sched.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.sched.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for len(h.sender.getMessages()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out, got %d messages", len(h.sender.getMessages()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Let a few more ticks run over the unchanged feed.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if diff := cmp.Diff(3, len(h.sender.getMessages())); diff != "" {
		t.Errorf("message count mismatch (-want +got):\n%s", diff)
	}
}
