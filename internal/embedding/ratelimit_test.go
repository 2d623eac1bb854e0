package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowEmbedder struct {
	countingEmbedder
	delay time.Duration
}

func (e *slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-time.After(e.delay):
		return e.countingEmbedder.Embed(ctx, text)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRateLimitedEmbedder_Throttles(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewRateLimitedEmbedder(inner, 20, 1, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := e.Embed(ctx, "x")
		require.NoError(t, err)
	}
	// 1 burst token, then 3 more at 20/s
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
	assert.EqualValues(t, 4, inner.calls.Load())
}

func TestRateLimitedEmbedder_Unlimited(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewRateLimitedEmbedder(inner, 0, 0, 0)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}

func TestRateLimitedEmbedder_BatchLargerThanBurst(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewRateLimitedEmbedder(inner, 1000, 2, 0)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
}

func TestRateLimitedEmbedder_Timeout(t *testing.T) {
	inner := &slowEmbedder{delay: time.Second}
	e := NewRateLimitedEmbedder(inner, 0, 1, 20*time.Millisecond)
	_, err := e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRateLimitedEmbedder_CancelledWhileWaiting(t *testing.T) {
	e := NewRateLimitedEmbedder(&countingEmbedder{}, 0.001, 1, 0)
	ctx := context.Background()
	_, err := e.Embed(ctx, "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = e.Embed(ctx, "second")
	require.ErrorIs(t, err, ErrEmbedding)
}
