package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher performs one authenticated GET per segment. A single http.Client is
// shared across all requests in a session so keep-alive connections to the
// CDN are reused.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a segment fetcher with a fixed User-Agent. Timeouts are
// applied per request, not on the client, because probe and steady fetches
// use different budgets.
func NewFetcher(userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		userAgent: userAgent,
	}
}

// FetchResult is the classified outcome of a segment request.
type FetchResult struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the response had a 2xx status.
func (r *FetchResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetch issues one GET with the given per-request timeout. A non-nil error
// means the request never produced a usable response (network failure,
// timeout, cancellation); HTTP error statuses come back as a FetchResult.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResult{StatusCode: resp.StatusCode, Body: body}, nil
}
