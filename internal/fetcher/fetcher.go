// Package fetcher handles feed downloading, parsing, and normalization.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"feed_notifier/internal/model"
)

// DefaultTimeout bounds a single feed request.
const DefaultTimeout = 10 * time.Second

const maxBodySize = 5 * 1024 * 1024

// ErrFetch wraps every failure to retrieve or parse a feed.
var ErrFetch = errors.New("fetch feed")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client     HTTPClient
	normalizer *Normalizer
	timeout    time.Duration
	now        func() time.Time
}

// New creates a Fetcher with the given HTTP client and normalizer.
func New(client HTTPClient, normalizer *Normalizer) *Fetcher {
	return &Fetcher{
		client:     client,
		normalizer: normalizer,
		timeout:    DefaultTimeout,
		now:        time.Now,
	}
}

// SetTimeout overrides the default request timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// Fetch downloads and parses the feed at url. Either the whole feed is
// returned or an error wrapping ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetch, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; FeedNotifier/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http get: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %w", ErrFetch, err)
	}
	return feed, nil
}

// FetchEntries downloads the feed at url and normalizes its items,
// preserving feed order.
func (f *Fetcher) FetchEntries(ctx context.Context, url string) ([]model.Entry, error) {
	feed, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	now := f.now()
	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, f.normalizer.Normalize(item, now))
	}
	return entries, nil
}
