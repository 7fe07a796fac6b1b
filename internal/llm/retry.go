package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/alain/internal/jsonx"
)

// RetryProvider is a decorator that retries failed attempts with
// exponential backoff and jitter. Empty content, and content without a JSON
// object when the request demands one, count as failed attempts.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig, logger zerolog.Logger) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryProvider{inner: p, config: cfg, logger: logger, sleep: sleepContext}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := range r.config.MaxAttempts {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			err = checkContent(req, resp)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if isContextErr(err) {
			return nil, err
		}

		r.logger.Warn().
			Err(err).
			Str("purpose", PurposeFrom(ctx)).
			Int("attempt", attempt+1).
			Int("max_attempts", r.config.MaxAttempts).
			Msg("gateway attempt failed")

		// Last attempt, don't sleep.
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		if err := r.sleep(ctx, r.backoff(attempt, err)); err != nil {
			return nil, err
		}
	}

	return nil, &ErrTransportExhausted{Attempts: r.config.MaxAttempts, Err: lastErr}
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// checkContent applies the gateway's minimal response normalization rules.
func checkContent(req Request, resp *Response) error {
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return &ErrInvalidResponse{Err: errors.New("empty content")}
	}
	if req.RequireJSON && !jsonx.HasObject(resp.Content) {
		return &ErrInvalidResponse{Content: resp.Content, Err: errors.New("no JSON object in content")}
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// backoff computes the wait duration before the attempt after the given one.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	// Respect RetryAfter for rate limits.
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// Add ±20% jitter.
	wait += wait * 0.2 * (2*rand.Float64() - 1)

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
