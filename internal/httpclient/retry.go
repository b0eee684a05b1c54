package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls when DoWithRetry retries after a response.
// This is per-request courtesy handling; bounded multi-attempt
// backoff lives with the caller.
type RetryPolicy struct {
	// Retry429: on 429 Too Many Requests, wait Retry-After (capped at Max429Wait) and retry once.
	Retry429   bool
	Max429Wait time.Duration
	// Retry5xx: on 5xx, wait Backoff5xx and retry once.
	Retry5xx   bool
	Backoff5xx time.Duration
}

// DefaultRetryPolicy retries 429 (cap 60s) and 5xx (1s backoff).
var DefaultRetryPolicy = RetryPolicy{
	Retry429:   true,
	Max429Wait: 60 * time.Second,
	Retry5xx:   true,
	Backoff5xx: 1 * time.Second,
}

// DoWithRetry performs req and on 429/5xx (when policy allows) waits
// and retries once. 4xx other than 429 are never retried. Caller must
// close resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return resp, nil
	case code == http.StatusTooManyRequests && policy.Retry429:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"), policy.Max429Wait)
		return retryAfter(ctx, client, req, resp, wait)
	case code >= 500 && policy.Retry5xx:
		return retryAfter(ctx, client, req, resp, policy.Backoff5xx)
	default:
		return resp, nil
	}
}

// retryAfter drains the failed response, sleeps, and reissues the
// request once. The request body (if any) was already consumed, so
// the retry carries none; feed requests are all GETs.
func retryAfter(ctx context.Context, client *http.Client, req *http.Request, failed *http.Response, wait time.Duration) (*http.Response, error) {
	_, _ = io.Copy(io.Discard, failed.Body)
	failed.Body.Close()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
	}
	req2, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		req2.Header[k] = v
	}
	return client.Do(req2)
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date), capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1 * time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if d > max {
			return max
		}
		return d
	}
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return 1 * time.Second
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	if until > max {
		return max
	}
	return until
}
