package hls

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/lectura/internal/domain"
)

// SessionState is the acquisition state machine position.
type SessionState string

const (
	StateUndetected SessionState = "undetected"
	StateSteady     SessionState = "steady"
	StateComplete   SessionState = "complete"
	StateAborted    SessionState = "aborted"
)

// ProgressFunc receives acquisition progress: ordinal of the current segment
// within the requested range, total segments requested, and a human message.
// It is invoked at least once per segment and once when pattern detection
// completes. Passing nil disables reporting.
type ProgressFunc func(current, total int, message string)

// SessionConfig configures one acquisition run.
type SessionConfig struct {
	BaseURL    string
	StartIndex int
	EndIndex   int // inclusive
	Auth       domain.SignedURLAuth

	// Pattern is the naming pattern detected by a previous run over the same
	// recording. When set, probing is skipped and the session starts steady.
	Pattern *NamingPattern

	ProbeTimeout           time.Duration // per-candidate timeout during pattern probing
	FetchTimeout           time.Duration // per-segment timeout in steady state
	MaxConsecutiveFailures int
	UserAgent              string
}

func (c *SessionConfig) applyDefaults() {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 15 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
	}
	c.BaseURL = NormalizeBaseURL(c.BaseURL)
}

// Result summarizes a finished acquisition run.
type Result struct {
	State          SessionState
	Pattern        *NamingPattern // nil when detection never succeeded
	SuccessCount   int
	TotalRequested int
	LastIndex      int // last index actually attempted
}

// Session drives one acquisition run: probe the naming pattern once, then
// fetch the remaining indices in strict ascending order, persisting each
// segment to the store. The session is single-use; create a new one per run.
type Session struct {
	cfg      SessionConfig
	fetcher  *Fetcher
	prober   *Prober
	store    *Store
	progress ProgressFunc
	logger   *slog.Logger

	state               SessionState
	pattern             *NamingPattern
	successCount        int
	consecutiveFailures int
	lastIndex           int
}

// NewSession creates an acquisition session writing into store. The progress
// sink is explicit here rather than process-global state so concurrent
// pipelines each report to their own observer.
func NewSession(cfg SessionConfig, store *Store, progress ProgressFunc, logger *slog.Logger) *Session {
	cfg.applyDefaults()
	fetcher := NewFetcher(cfg.UserAgent)
	s := &Session{
		cfg:      cfg,
		fetcher:  fetcher,
		prober:   NewProber(fetcher, store, cfg.ProbeTimeout, logger),
		store:    store,
		progress: progress,
		logger:   logger,
		state:    StateUndetected,
	}
	if cfg.Pattern != nil {
		p := *cfg.Pattern
		s.pattern = &p
		s.state = StateSteady
	}
	return s
}

// State returns the session's current state machine position.
func (s *Session) State() SessionState {
	return s.state
}

// Pattern returns the detected naming pattern, or nil before detection.
// The pattern is set at most once and never changes within a session.
func (s *Session) Pattern() *NamingPattern {
	return s.pattern
}

// Run executes the acquisition loop. It returns a non-nil error only for the
// fatal outcomes: pattern never detected within the failure budget, zero
// segments acquired over the whole range, cancellation, or a store write
// failure. Individual fetch failures are tolerated; when the contiguous run
// of failing indices exceeds the budget the loop stops early on the
// assumption the true end of the stream has been passed, and the partial
// download still counts as success.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if s.cfg.EndIndex < s.cfg.StartIndex {
		return s.result(), domain.ErrInvalidRange
	}

	total := s.cfg.EndIndex - s.cfg.StartIndex + 1

	s.logger.Info("starting segment acquisition",
		"base_url", s.cfg.BaseURL,
		"start_index", s.cfg.StartIndex,
		"end_index", s.cfg.EndIndex,
	)

	for i := s.cfg.StartIndex; i <= s.cfg.EndIndex; i++ {
		if err := ctx.Err(); err != nil {
			s.state = StateAborted
			return s.result(), err
		}
		s.lastIndex = i
		current := i - s.cfg.StartIndex + 1

		filename := s.filenameFor(i)
		if s.store.Has(filename) {
			s.successCount++
			s.consecutiveFailures = 0
			s.report(current, total, fmt.Sprintf("segment %d cached", i))
			continue
		}

		if s.pattern == nil {
			if done := s.probeAt(ctx, i, current, total); done {
				if err := ctx.Err(); err != nil {
					return s.result(), err
				}
				return s.result(), domain.ErrPatternNotFound
			}
			continue
		}

		if stop := s.fetchAt(ctx, i, filename, current, total); stop {
			if err := ctx.Err(); err != nil {
				s.state = StateAborted
				return s.result(), err
			}
			break
		}
	}

	if s.successCount == 0 {
		s.state = StateAborted
		s.logger.Error("acquisition finished with zero segments")
		return s.result(), domain.ErrNoSegments
	}

	s.state = StateComplete
	s.logger.Info("acquisition complete",
		"segments", s.successCount,
		"requested", total,
	)
	return s.result(), nil
}

// probeAt runs pattern detection at index i. It returns true when the
// failure budget is exhausted and the session must abort.
func (s *Session) probeAt(ctx context.Context, i, current, total int) bool {
	s.report(current, total, fmt.Sprintf("probing segment %d", i))

	pattern, err := s.prober.Detect(ctx, s.cfg.BaseURL, i, s.cfg.Auth)
	if err != nil {
		if ctx.Err() != nil {
			s.state = StateAborted
			return true
		}
		s.consecutiveFailures++
		s.logger.Warn("pattern probe failed",
			"index", i,
			"consecutive_failures", s.consecutiveFailures,
		)
		if s.consecutiveFailures >= s.cfg.MaxConsecutiveFailures {
			s.state = StateAborted
			return true
		}
		return false
	}

	p := pattern
	s.pattern = &p
	s.state = StateSteady
	s.successCount++
	s.consecutiveFailures = 0
	s.report(current, total, fmt.Sprintf("detected pattern, segment %d downloaded", i))
	return false
}

// fetchAt downloads one segment in steady state. It returns true when the
// contiguous failure run has exceeded the budget and the loop should stop.
func (s *Session) fetchAt(ctx context.Context, i int, filename string, current, total int) bool {
	s.report(current, total, fmt.Sprintf("downloading segment %d", i))

	url := BuildSegmentURL(s.cfg.BaseURL, filename, s.cfg.Auth)
	result, err := s.fetcher.Fetch(ctx, url, s.cfg.FetchTimeout)
	if err != nil || !result.OK() {
		if ctx.Err() != nil {
			return true
		}
		s.consecutiveFailures++
		if err != nil {
			s.logger.Warn("segment fetch failed", "index", i, "error", err)
		} else {
			s.logger.Warn("segment fetch failed", "index", i, "status", result.StatusCode)
		}
		// A run of failures exactly at the budget is still tolerated; one
		// past it means we are assumed past the true end of the stream.
		if s.consecutiveFailures > s.cfg.MaxConsecutiveFailures {
			s.logger.Warn("consecutive failure budget exceeded, stopping early", "index", i)
			return true
		}
		return false
	}

	if len(result.Body) <= MinSegmentBytes {
		s.logger.Warn("segment smaller than validity threshold",
			"index", i,
			"bytes", len(result.Body),
		)
	}

	if err := s.store.Put(filename, result.Body); err != nil {
		// Disk failure is not a CDN failure; count it against the budget
		// rather than crashing the run.
		s.consecutiveFailures++
		s.logger.Error("segment store failed", "index", i, "error", err)
		return s.consecutiveFailures > s.cfg.MaxConsecutiveFailures
	}

	s.successCount++
	s.consecutiveFailures = 0
	return false
}

func (s *Session) filenameFor(index int) string {
	if s.pattern != nil {
		return s.pattern.Filename(index)
	}
	return DefaultPattern().Filename(index)
}

func (s *Session) report(current, total int, message string) {
	if s.progress != nil {
		s.progress(current, total, message)
	}
}

func (s *Session) result() *Result {
	return &Result{
		State:          s.state,
		Pattern:        s.pattern,
		SuccessCount:   s.successCount,
		TotalRequested: s.cfg.EndIndex - s.cfg.StartIndex + 1,
		LastIndex:      s.lastIndex,
	}
}
