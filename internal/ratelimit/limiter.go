package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"
)

// Config sets the per-window budgets.
type Config struct {
	TokensPerWindow   int
	RequestsPerWindow int
	Window            time.Duration
}

// DefaultConfig matches the embedding provider's published limits.
func DefaultConfig() Config {
	return Config{
		TokensPerWindow:   1_000_000,
		RequestsPerWindow: 500,
		Window:            time.Minute,
	}
}

// Snapshot is a point-in-time view of the limiter's counters.
type Snapshot struct {
	TokensUsed        int           `json:"tokens_used"`
	Requests          int           `json:"requests"`
	TokensPerWindow   int           `json:"tokens_per_window"`
	RequestsPerWindow int           `json:"requests_per_window"`
	WindowRemaining   time.Duration `json:"window_remaining_ns"`
	Waits             int64         `json:"waits"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWaitObserver registers fn to be called each time a caller has to
// wait for the window to roll over.
func WithWaitObserver(fn func(wait time.Duration)) Option {
	return func(l *Limiter) { l.onWait = fn }
}

// Limiter is a fixed-window token and request budget shared by every
// embedding call in the process. Calls are admitted one at a time so the
// check and the increment are atomic with respect to other callers.
type Limiter struct {
	cfg    Config
	clock  clock.Clock
	gate   *semaphore.Weighted
	onWait func(time.Duration)

	mu          sync.Mutex
	tokensUsed  int
	requests    int
	windowStart time.Time
	waits       int64
}

// New creates a limiter. A nil clock uses wall time.
func New(cfg Config, clk clock.Clock, opts ...Option) *Limiter {
	def := DefaultConfig()
	if cfg.TokensPerWindow <= 0 {
		cfg.TokensPerWindow = def.TokensPerWindow
	}
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = def.RequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if clk == nil {
		clk = clock.New()
	}
	l := &Limiter{
		cfg:         cfg,
		clock:       clk,
		gate:        semaphore.NewWeighted(1),
		windowStart: clk.Now(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndUpdate reserves tokens and one request in the current window.
// If either budget would be exceeded the caller waits for the window to
// end, the counters reset, and the call is then counted. A single call
// larger than the whole token budget is admitted alone in a fresh window.
func (l *Limiter) CheckAndUpdate(ctx context.Context, tokens int) error {
	if err := l.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.gate.Release(1)

	now := l.clock.Now()
	l.mu.Lock()
	if now.Sub(l.windowStart) >= l.cfg.Window {
		l.resetLocked(now)
	}
	over := l.tokensUsed+tokens > l.cfg.TokensPerWindow || l.requests >= l.cfg.RequestsPerWindow
	wait := l.cfg.Window - now.Sub(l.windowStart)
	l.mu.Unlock()

	if over && wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		l.mu.Lock()
		l.resetLocked(l.clock.Now())
		l.waits++
		l.mu.Unlock()
	}

	l.mu.Lock()
	l.tokensUsed += tokens
	l.requests++
	l.mu.Unlock()
	return nil
}

func (l *Limiter) resetLocked(now time.Time) {
	l.tokensUsed = 0
	l.requests = 0
	l.windowStart = now
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	t := l.clock.Timer(d)
	defer t.Stop()
	if l.onWait != nil {
		l.onWait(d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot returns the current counters.
func (l *Limiter) Snapshot() Snapshot {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.cfg.Window - now.Sub(l.windowStart)
	s := Snapshot{
		TokensUsed:        l.tokensUsed,
		Requests:          l.requests,
		TokensPerWindow:   l.cfg.TokensPerWindow,
		RequestsPerWindow: l.cfg.RequestsPerWindow,
		WindowRemaining:   max(remaining, 0),
		Waits:             l.waits,
	}
	if remaining <= 0 {
		s.TokensUsed, s.Requests = 0, 0
	}
	return s
}
