package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 2 * time.Minute
)

// Limiter spaces out requests to one upstream API and pauses callers
// after the upstream answers 429
type Limiter struct {
	limiter *rate.Limiter
	name    string

	mu          sync.Mutex
	backoff     time.Duration
	pausedUntil time.Time
	now         func() time.Time
}

// NewLimiter creates a limiter allowing perMinute requests per minute
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	// burst of 1/10th of the minute budget, 1..5
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		name:    name,
		backoff: initialBackoff,
		now:     time.Now,
	}
}

// Wait blocks until a pending backoff pause has elapsed and a token is
// available, or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	if pause := l.remainingPause(); pause > 0 {
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may go out right now
func (l *Limiter) Allow() bool {
	if l.remainingPause() > 0 {
		return false
	}
	return l.limiter.Allow()
}

// SignalRateLimited pauses the limiter for the current backoff and doubles
// the backoff for the next 429
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pausedUntil = l.now().Add(l.backoff)
	l.backoff *= 2
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
}

// ResetBackoff is called after a successful request
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = initialBackoff
	l.pausedUntil = time.Time{}
}

// Backoff returns the pause the next 429 will cause
func (l *Limiter) Backoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

func (l *Limiter) Name() string {
	return l.name
}

func (l *Limiter) remainingPause() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pausedUntil.IsZero() {
		return 0
	}
	return l.pausedUntil.Sub(l.now())
}
