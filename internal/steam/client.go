// Package steam implements the two remote source clients (the
// appdetails API and the store page) plus the normalizer that turns
// their raw payloads into canonical game records. Both clients share
// one retry policy; only the payload shape differs.
package steam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// FetchFailure is the typed terminal result of a failed fetch. Raw
// transport errors never cross the client boundary.
type FetchFailure struct {
	AppID      int64
	Category   game.Category
	StatusCode int
	Message    string
}

func (f *FetchFailure) Error() string {
	if f.StatusCode > 0 {
		return fmt.Sprintf("fetch app %d: %s (HTTP %d): %s", f.AppID, f.Category, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("fetch app %d: %s: %s", f.AppID, f.Category, f.Message)
}

// FailureCategory extracts the failure category from a client error.
// The second return is false for errors that are not fetch failures
// (notably context cancellation).
func FailureCategory(err error) (game.Category, bool) {
	var f *FetchFailure
	if errors.As(err, &f) {
		return f.Category, true
	}
	return "", false
}

// Doer abstracts *http.Client for tests.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// PauseFunc sleeps for the backoff delay, returning early with the
// context error on cancellation.
type PauseFunc func(ctx context.Context, delay time.Duration) error

// TimerPause is the production PauseFunc.
func TimerPause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ClientConfig holds the knobs shared by both source clients.
type ClientConfig struct {
	// MaxAttempts is the number of retries after the first attempt; the
	// attempt loop runs 0..MaxAttempts inclusive.
	MaxAttempts int
	// BackoffBase is doubled per attempt: base, 2*base, 4*base, ...
	BackoffBase time.Duration
	UserAgent   string
}

func (c *ClientConfig) withDefaults() ClientConfig {
	cfg := *c
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	return cfg
}

// Statuses on which the remote is throttling or briefly unavailable.
// Steam uses 403 for rate limiting alongside the usual suspects.
func throttled(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func notFoundStatus(status int) bool {
	return status == http.StatusNotFound || status == http.StatusBadRequest
}

// retrier runs the shared attempt loop. It holds no per-fetch state and
// is safe for concurrent use across IDs.
type retrier struct {
	doer   Doer
	cfg    ClientConfig
	pause  PauseFunc
	logger *zap.Logger
}

func newRetrier(doer Doer, cfg ClientConfig, pause PauseFunc, logger *zap.Logger) *retrier {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	if pause == nil {
		pause = TimerPause
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrier{doer: doer, cfg: cfg.withDefaults(), pause: pause, logger: logger}
}

func (r *retrier) backoff(attempt int) time.Duration {
	return r.cfg.BackoffBase << attempt
}

// fetch issues the request built by newReq until it yields a 2xx body or
// a terminal failure. newReq is called per attempt so request bodies are
// never reused.
func (r *retrier) fetch(ctx context.Context, appID int64, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	unknownRetried := false
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch app %d: %w", appID, err)
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request for app %d: %w", appID, err)
		}
		if r.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", r.cfg.UserAgent)
		}

		resp, err := r.doer.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch app %d: %w", appID, ctx.Err())
			}
			// Network-level error: transient, same backoff as throttling.
			if attempt < r.cfg.MaxAttempts {
				if perr := r.waitBackoff(ctx, appID, attempt, err.Error()); perr != nil {
					return nil, perr
				}
				continue
			}
			return nil, &FetchFailure{
				AppID:    appID,
				Category: game.CategoryTransient,
				Message:  fmt.Sprintf("max retries (%d) exceeded: %v", r.cfg.MaxAttempts, err),
			}
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				if attempt < r.cfg.MaxAttempts {
					if perr := r.waitBackoff(ctx, appID, attempt, readErr.Error()); perr != nil {
						return nil, perr
					}
					continue
				}
				return nil, &FetchFailure{
					AppID:    appID,
					Category: game.CategoryTransient,
					Message:  fmt.Sprintf("max retries (%d) exceeded: %v", r.cfg.MaxAttempts, readErr),
				}
			}
			return body, nil

		case throttled(resp.StatusCode):
			if attempt < r.cfg.MaxAttempts {
				if perr := r.waitBackoff(ctx, appID, attempt, fmt.Sprintf("HTTP %d", resp.StatusCode)); perr != nil {
					return nil, perr
				}
				continue
			}
			return nil, &FetchFailure{
				AppID:      appID,
				Category:   game.CategoryRateLimited,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("max retries (%d) exceeded", r.cfg.MaxAttempts),
			}

		case notFoundStatus(resp.StatusCode):
			return nil, &FetchFailure{
				AppID:      appID,
				Category:   game.CategoryNotFound,
				StatusCode: resp.StatusCode,
				Message:    "resource does not exist or request was malformed",
			}

		default:
			// Unexpected status: retry once, then terminal.
			if !unknownRetried && attempt < r.cfg.MaxAttempts {
				unknownRetried = true
				if perr := r.waitBackoff(ctx, appID, attempt, fmt.Sprintf("HTTP %d", resp.StatusCode)); perr != nil {
					return nil, perr
				}
				continue
			}
			return nil, &FetchFailure{
				AppID:      appID,
				Category:   game.CategoryUnknown,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("unexpected HTTP %d", resp.StatusCode),
			}
		}
	}
}

func (r *retrier) waitBackoff(ctx context.Context, appID int64, attempt int, cause string) error {
	delay := r.backoff(attempt)
	r.logger.Warn("retrying fetch",
		zap.Int64("app_id", appID),
		zap.Int("attempt", attempt+1),
		zap.Duration("delay", delay),
		zap.String("cause", cause),
	)
	if err := r.pause(ctx, delay); err != nil {
		return fmt.Errorf("backoff wait for app %d: %w", appID, err)
	}
	return nil
}
