package llm

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"frq-generator/config"
)

// RetryConfig bounds how often one request is resent. Waits double from InitialWait up to MaxWait.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

func RetryConfigFrom(cfg config.LLM) RetryConfig {
	return RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		InitialWait: cfg.RetryWait,
		MaxWait:     10 * cfg.RetryWait,
	}
}

// RetryProvider resends requests that failed for transient reasons. A wait that would
// outlast the context deadline is not started; the last error is returned instead so the
// job dispatcher can redeliver later.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
	logger zerolog.Logger
}

func WithRetry(p Provider, cfg RetryConfig, logger zerolog.Logger) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxWait < cfg.InitialWait {
		cfg.MaxWait = cfg.InitialWait
	}
	return &RetryProvider{
		inner:  p,
		config: cfg,
		logger: logger.With().Str("component", "llm").Logger(),
	}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil || !Transient(err) || attempt >= r.config.MaxAttempts {
			return resp, err
		}

		wait := r.backoff(attempt, err)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return nil, err
		}
		r.logger.Warn().Err(err).
			Str("purpose", PurposeFrom(ctx)).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("retrying llm request")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// backoff is the wait after the given failed attempt, counted from 1, with up to 20% jitter.
// A provider supplied Retry-After wins.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	if after := retryAfter(err); after > 0 {
		return after
	}
	wait := r.config.InitialWait
	for i := 1; i < attempt && wait < r.config.MaxWait; i++ {
		wait *= 2
	}
	wait = min(wait, r.config.MaxWait)
	jitter := time.Duration(float64(wait) * 0.2 * rand.Float64())
	return wait - jitter
}
