package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type ProviderMiddleware func(Provider) Provider

// Chain wraps p so that the first middleware is the outermost.
func Chain(p Provider, mws ...ProviderMiddleware) Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}

	return p
}

// Guard applies the retry, limit and timeout policy of cfg around p.
func Guard(p Provider, cfg Config) Provider {
	var mws []ProviderMiddleware

	if cfg.Retries > 0 {
		mws = append(mws, RetryMiddleware(cfg.Retries, cfg.RetryBackoff))
	}

	if cfg.MaxConcurrency > 0 || cfg.RequestsPerSecond > 0 {
		var limiter *rate.Limiter
		if cfg.RequestsPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
		}

		mws = append(mws, LimitMiddleware(cfg.MaxConcurrency, limiter))
	}

	if cfg.Timeout > 0 {
		mws = append(mws, TimeoutMiddleware(cfg.Timeout))
	}

	return Chain(p, mws...)
}

type wrapped struct {
	next Provider
	chat func(ctx context.Context, req Request) (*Response, error)
}

func (w *wrapped) Name() string {
	return w.next.Name()
}

func (w *wrapped) Chat(ctx context.Context, req Request) (*Response, error) {
	return w.chat(ctx, req)
}

func (w *wrapped) Close() error {
	return w.next.Close()
}

// TimeoutMiddleware bounds every attempt by d.
func TimeoutMiddleware(d time.Duration) ProviderMiddleware {
	return func(next Provider) Provider {
		return &wrapped{
			next: next,
			chat: func(ctx context.Context, req Request) (*Response, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()

				return next.Chat(ctx, req)
			},
		}
	}
}

// RetryMiddleware repeats transient failures up to retries more times.
func RetryMiddleware(retries int, backoff time.Duration) ProviderMiddleware {
	return func(next Provider) Provider {
		log := zap.L().With(
			zap.String("provider", next.Name()),
		)

		return &wrapped{
			next: next,
			chat: func(ctx context.Context, req Request) (*Response, error) {
				var (
					resp *Response
					err  error
				)

				for attempt := 0; attempt <= retries; attempt++ {
					if attempt > 0 {
						log.Warn("retrying transient failure",
							zap.Int("attempt", attempt),
							zap.Error(err),
						)

						select {
						case <-ctx.Done():
							return nil, err
						case <-time.After(backoff):
						}
					}

					resp, err = next.Chat(ctx, req)
					if err == nil {
						return resp, nil
					}

					if ctx.Err() != nil || !IsTransient(err) {
						return nil, err
					}
				}

				return nil, err
			},
		}
	}
}

// LimitMiddleware bounds in-flight calls with a weighted semaphore and paces
// them with limiter. Either may be disabled with zero or nil.
func LimitMiddleware(maxConcurrency int64, limiter *rate.Limiter) ProviderMiddleware {
	var sem *semaphore.Weighted
	if maxConcurrency > 0 {
		sem = semaphore.NewWeighted(maxConcurrency)
	}

	return func(next Provider) Provider {
		return &wrapped{
			next: next,
			chat: func(ctx context.Context, req Request) (*Response, error) {
				if sem != nil {
					if err := sem.Acquire(ctx, 1); err != nil {
						return nil, err
					}
					defer sem.Release(1)
				}

				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return nil, err
					}
				}

				return next.Chat(ctx, req)
			},
		}
	}
}
