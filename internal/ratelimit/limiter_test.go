package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(cfg Config) (*Limiter, *clock.Mock, chan time.Duration) {
	mock := clock.NewMock()
	waiting := make(chan time.Duration, 1)
	l := New(cfg, mock, WithWaitObserver(func(d time.Duration) { waiting <- d }))
	return l, mock, waiting
}

func TestLimiter_CheckAndUpdate(t *testing.T) {
	t.Run("Should admit calls that fit the window without waiting", func(t *testing.T) {
		l, _, _ := newTestLimiter(Config{TokensPerWindow: 100, RequestsPerWindow: 10, Window: time.Minute})
		ctx := context.Background()
		require.NoError(t, l.CheckAndUpdate(ctx, 30))
		require.NoError(t, l.CheckAndUpdate(ctx, 30))
		require.NoError(t, l.CheckAndUpdate(ctx, 40))

		s := l.Snapshot()
		assert.Equal(t, 100, s.TokensUsed)
		assert.Equal(t, 3, s.Requests)
		assert.Zero(t, s.Waits)
	})

	t.Run("Should wait for the window when the token budget is exhausted", func(t *testing.T) {
		l, mock, waiting := newTestLimiter(Config{TokensPerWindow: 100, RequestsPerWindow: 10, Window: time.Minute})
		ctx := context.Background()
		require.NoError(t, l.CheckAndUpdate(ctx, 90))
		mock.Add(20 * time.Second)

		done := make(chan error, 1)
		go func() { done <- l.CheckAndUpdate(ctx, 20) }()

		assert.Equal(t, 40*time.Second, <-waiting)
		mock.Add(40 * time.Second)
		require.NoError(t, <-done)

		s := l.Snapshot()
		assert.Equal(t, 20, s.TokensUsed)
		assert.Equal(t, 1, s.Requests)
		assert.Equal(t, int64(1), s.Waits)
	})

	t.Run("Should wait when the request cap is reached", func(t *testing.T) {
		l, mock, waiting := newTestLimiter(Config{TokensPerWindow: 1000, RequestsPerWindow: 2, Window: time.Minute})
		ctx := context.Background()
		require.NoError(t, l.CheckAndUpdate(ctx, 1))
		require.NoError(t, l.CheckAndUpdate(ctx, 1))

		done := make(chan error, 1)
		go func() { done <- l.CheckAndUpdate(ctx, 1) }()

		assert.Equal(t, time.Minute, <-waiting)
		mock.Add(time.Minute)
		require.NoError(t, <-done)
		assert.Equal(t, 1, l.Snapshot().Requests)
	})

	t.Run("Should reset counters once the window has elapsed", func(t *testing.T) {
		l, mock, _ := newTestLimiter(Config{TokensPerWindow: 100, RequestsPerWindow: 10, Window: time.Minute})
		ctx := context.Background()
		require.NoError(t, l.CheckAndUpdate(ctx, 100))
		mock.Add(time.Minute)
		assert.Zero(t, l.Snapshot().TokensUsed)

		require.NoError(t, l.CheckAndUpdate(ctx, 50))
		s := l.Snapshot()
		assert.Equal(t, 50, s.TokensUsed)
		assert.Zero(t, s.Waits)
	})

	t.Run("Should stop waiting when the context is canceled", func(t *testing.T) {
		l, _, waiting := newTestLimiter(Config{TokensPerWindow: 10, RequestsPerWindow: 10, Window: time.Minute})
		require.NoError(t, l.CheckAndUpdate(context.Background(), 10))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- l.CheckAndUpdate(ctx, 5) }()

		<-waiting
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
		assert.Equal(t, 10, l.Snapshot().TokensUsed)
	})

	t.Run("Should count concurrent callers exactly", func(t *testing.T) {
		l, _, _ := newTestLimiter(Config{TokensPerWindow: 1000, RequestsPerWindow: 100, Window: time.Minute})
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, l.CheckAndUpdate(context.Background(), 20))
			}()
		}
		wg.Wait()

		s := l.Snapshot()
		assert.Equal(t, 1000, s.TokensUsed)
		assert.Equal(t, 50, s.Requests)
		assert.Zero(t, s.Waits)
	})
}

func TestNew_Defaults(t *testing.T) {
	l := New(Config{}, clock.NewMock())
	s := l.Snapshot()
	assert.Equal(t, 1_000_000, s.TokensPerWindow)
	assert.Equal(t, 500, s.RequestsPerWindow)
	assert.Equal(t, time.Minute, s.WindowRemaining)
}
