package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig contains configuration for retry logic
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry executes a function with capped exponential backoff
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// RateLimitedRetry combines an upstream politeness limiter with retry logic
func RateLimitedRetry(ctx context.Context, limiter *rate.Limiter, cfg RetryConfig, fn func() error) error {
	return Retry(ctx, cfg, func() error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return fn()
	})
}

// Group runs tasks with bounded concurrency and reports the first error.
// Used for independent startup refreshes that should not serialize.
type Group struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	err    error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGroup creates a group allowing up to limit concurrent tasks
func NewGroup(ctx context.Context, limit int) *Group {
	if limit <= 0 {
		limit = 1
	}
	gctx, cancel := context.WithCancel(ctx)
	return &Group{
		sem:    make(chan struct{}, limit),
		ctx:    gctx,
		cancel: cancel,
	}
}

// Go schedules a task. Tasks started after the first failure still run;
// only the first error is retained.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		select {
		case g.sem <- struct{}{}:
			defer func() { <-g.sem }()
		case <-g.ctx.Done():
			g.record(g.ctx.Err())
			return
		}

		if err := fn(g.ctx); err != nil {
			g.record(err)
		}
	}()
}

// Wait blocks until all scheduled tasks finish and returns the first error
func (g *Group) Wait() error {
	g.wg.Wait()
	g.cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Group) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.err = err
	}
}
