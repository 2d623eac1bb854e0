package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles calls to next with a token bucket and bounds each call
// with a timeout. Each text of a batch consumes one token.
type RateLimitedEmbedder struct {
	next    Embedder
	limiter *rate.Limiter
	timeout time.Duration
}

// NewRateLimitedEmbedder wraps next. rps <= 0 disables throttling; timeout <= 0 disables
// the per-call deadline.
func NewRateLimitedEmbedder(next Embedder, rps float64, burst int, timeout time.Duration) *RateLimitedEmbedder {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
	}
}

// Embed waits for a token then embeds text under the call timeout.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbedding, err)
	}
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.next.Embed(callCtx, text)
}

// EmbedBatch waits for one token per text then embeds the batch under the call timeout.
func (e *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	n := len(texts)
	if n > e.limiter.Burst() {
		// WaitN rejects n above the burst size
		for i := 0; i < n; i++ {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbedding, err)
			}
		}
	} else if err := e.limiter.WaitN(ctx, n); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbedding, err)
	}
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.next.EmbedBatch(callCtx, texts)
}

func (e *RateLimitedEmbedder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// Dimensions returns the wrapped embedder's dimension.
func (e *RateLimitedEmbedder) Dimensions() int {
	return e.next.Dimensions()
}

// Close closes the wrapped embedder.
func (e *RateLimitedEmbedder) Close() error {
	return e.next.Close()
}
