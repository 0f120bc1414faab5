// Package fetcher retrieves page HTML over HTTP with bounded
// concurrency, robots.txt compliance, and retries for seed pages.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonesrussell/towncrier/internal/logger"
)

// maxPageBodySize limits how much of a page response we read.
const maxPageBodySize = 10 * 1024 * 1024 // 10 MB

// defaultRetryDelay is the pause between seed-page fetch attempts.
const defaultRetryDelay = 2 * time.Second

// ErrRobotsBlocked marks URLs the host's robots.txt disallows.
var ErrRobotsBlocked = errors.New("blocked by robots.txt")

// Config holds fetch behavior settings.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Concurrency int
	SeedRetries int
}

// Fetcher downloads page HTML. Article pages get a single attempt;
// seed (listing) pages are retried because losing one loses every
// article link behind it.
type Fetcher struct {
	client      *http.Client
	robots      *RobotsGate
	log         logger.Interface
	userAgent   string
	sem         chan struct{}
	seedRetries int
	retryDelay  time.Duration
}

// Result pairs a fetched URL with its HTML. HTML is empty when the
// fetch failed; the error explains why.
type Result struct {
	URL  string
	HTML string
	Err  error
}

func New(cfg Config, log logger.Interface) *Fetcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	client := &http.Client{Timeout: cfg.Timeout}

	return &Fetcher{
		client:      client,
		robots:      NewRobotsGate(client, cfg.UserAgent, log),
		log:         log.WithComponent("fetcher"),
		userAgent:   cfg.UserAgent,
		sem:         make(chan struct{}, cfg.Concurrency),
		seedRetries: cfg.SeedRetries,
		retryDelay:  defaultRetryDelay,
	}
}

// Fetch retrieves a single page. Returns the HTML body on a 2xx
// response and an error otherwise.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if !f.robots.Allowed(ctx, rawURL) {
		return "", fmt.Errorf("%w: %s", ErrRobotsBlocked, rawURL)
	}

	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return f.doFetch(ctx, rawURL)
}

// FetchSeed retrieves a seed page, retrying transient failures.
// Robots denial is permanent and is not retried.
func (f *Fetcher) FetchSeed(ctx context.Context, rawURL string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= f.seedRetries; attempt++ {
		if attempt > 0 {
			f.log.Warn("retrying seed page",
				"url", rawURL,
				"attempt", attempt+1,
				"error", lastErr.Error(),
			)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		html, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return html, nil
		}
		if errors.Is(err, ErrRobotsBlocked) || errors.Is(err, context.Canceled) {
			return "", err
		}

		lastErr = err
	}

	return "", fmt.Errorf("seed page after %d attempts: %w", f.seedRetries+1, lastErr)
}

// FetchMany retrieves a batch of article pages concurrently, bounded
// by the configured concurrency. Failed fetches are logged and come
// back with empty HTML so one bad page never sinks the batch.
func (f *Fetcher) FetchMany(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)

		go func(i int, u string) {
			defer wg.Done()

			html, err := f.Fetch(ctx, u)
			if err != nil {
				f.log.Warn("page fetch failed", "url", u, "error", err.Error())
			}
			results[i] = Result{URL: u, HTML: html, Err: err}
		}(i, u)
	}

	wg.Wait()

	return results
}

func (f *Fetcher) doFetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("http status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBodySize))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	return string(body), nil
}
