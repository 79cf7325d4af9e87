package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// errNonRetryable marks a response status that fetch records without
// retrying.
var errNonRetryable = errors.New("non-retryable status")

// fetchResult is a successfully retrieved document body plus its content
// type, enough to dispatch to the right extractor.
type fetchResult struct {
	FinalURL    string
	ContentType string
	Body        []byte
}

// fetcher wraps an *http.Client with the crawler's politeness, retry, and
// redirect-limiting policy.
type fetcher struct {
	client      *http.Client
	maxRedirect int
	maxRetries  int
	maxBodySize int64
}

func newFetcher(timeout time.Duration, maxRedirects, maxRetries int, maxBodySize int64) *fetcher {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("crawler: stopped after %d redirects", maxRedirects)
			}
			if _, err := ValidateFetchTarget(req.URL.String()); err != nil {
				return err
			}
			return nil
		},
	}
	return &fetcher{client: client, maxRedirect: maxRedirects, maxRetries: maxRetries, maxBodySize: maxBodySize}
}

// originLimiters hands out one token-bucket rate.Limiter per origin,
// implementing the crawler's per-origin politeness policy independently
// of any single crawl job's concurrency.
type originLimiters struct {
	limiters map[string]*rate.Limiter
	rps      rate.Limit
}

func newOriginLimiters(requestsPerSecond float64) *originLimiters {
	return &originLimiters{limiters: make(map[string]*rate.Limiter), rps: rate.Limit(requestsPerSecond)}
}

func (o *originLimiters) wait(ctx context.Context, origin string) error {
	l, ok := o.limiters[origin]
	if !ok {
		l = rate.NewLimiter(o.rps, 1)
		o.limiters[origin] = l
	}
	return l.Wait(ctx)
}

// fetch retrieves one URL with retry/backoff, honoring a per-origin
// politeness wait before every attempt.
func (f *fetcher) fetch(ctx context.Context, userAgent, target string) (fetchResult, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fetchResult{}, ctx.Err()
			}
			backoff *= 2
		}

		result, err := f.doOnce(ctx, userAgent, target)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, errNonRetryable) {
			return fetchResult{}, err
		}
		lastErr = err
	}
	return fetchResult{}, fmt.Errorf("crawler: fetch %q failed after %d attempts: %w", target, f.maxRetries+1, lastErr)
}

func (f *fetcher) doOnce(ctx context.Context, userAgent, target string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fetchResult{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
		return fetchResult{}, fmt.Errorf("crawler: %s returned %d", target, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return fetchResult{}, fmt.Errorf("crawler: %s returned status %d: %w", target, resp.StatusCode, errNonRetryable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return fetchResult{}, err
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return fetchResult{
		FinalURL:    finalURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// origin returns scheme://host for a parsed URL, the unit robots.txt and
// politeness are scoped to.
func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
