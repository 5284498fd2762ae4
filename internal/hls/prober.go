package hls

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/lectura/internal/domain"
)

// Prober discovers which naming convention a CDN deployment uses for its
// segments by trying the fixed candidate list against one segment index.
type Prober struct {
	fetcher *Fetcher
	store   *Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewProber creates a prober that fetches with the given per-candidate timeout
// and persists the probed payload into store on success.
func NewProber(fetcher *Fetcher, store *Store, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		fetcher: fetcher,
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

// Detect probes the candidates in order at probeIndex. A candidate is
// accepted iff the response is 2xx and the body exceeds MinSegmentBytes; the
// first accepted candidate wins and its payload is written to the store so
// the segment is not fetched twice. When every candidate fails the caller is
// expected to retry at a later index.
func (p *Prober) Detect(ctx context.Context, baseURL string, probeIndex int, auth domain.SignedURLAuth) (NamingPattern, error) {
	for _, candidate := range CandidatePatterns() {
		if err := ctx.Err(); err != nil {
			return NamingPattern{}, err
		}

		filename := candidate.Filename(probeIndex)
		url := BuildSegmentURL(baseURL, filename, auth)

		result, err := p.fetcher.Fetch(ctx, url, p.timeout)
		if err != nil {
			continue
		}
		if !result.OK() || len(result.Body) <= MinSegmentBytes {
			continue
		}

		if err := p.store.Put(filename, result.Body); err != nil {
			return NamingPattern{}, fmt.Errorf("store probed segment: %w", err)
		}

		p.logger.Info("detected segment naming pattern",
			"prefix", candidate.Prefix,
			"padding", candidate.Padding,
			"probe_index", probeIndex,
		)
		return candidate, nil
	}

	return NamingPattern{}, domain.ErrPatternNotFound
}
