package connector

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// PlatformPacing is the anti-bot pacing policy for one platform.
type PlatformPacing struct {
	MinIntervalMs   int
	JitterMs        int
	MaxCaptchaRetries int
}

// DefaultPacing holds the per-platform pacing defaults.
var DefaultPacing = map[string]PlatformPacing{
	"spareroom":       {MinIntervalMs: 1100, JitterMs: 250, MaxCaptchaRetries: 1},
	"roomies":         {MinIntervalMs: 1300, JitterMs: 300, MaxCaptchaRetries: 1},
	"leasebreak":      {MinIntervalMs: 1200, JitterMs: 300, MaxCaptchaRetries: 1},
	"renthop":         {MinIntervalMs: 1400, JitterMs: 400, MaxCaptchaRetries: 1},
	"furnishedfinder": {MinIntervalMs: 1500, JitterMs: 450, MaxCaptchaRetries: 1},
}

// Pacer enforces a minimum spaced interval between calls keyed by
// platform:account:action, with jitter, to stay under anti-bot thresholds.
type Pacer struct {
	mu            sync.Mutex
	lastAttemptAt map[string]time.Time
	random        func() float64
	now           func() time.Time
}

// NewPacer creates a pacer using the real clock and random source.
func NewPacer() *Pacer {
	return &Pacer{
		lastAttemptAt: make(map[string]time.Time),
		random:        rand.Float64,
		now:           time.Now,
	}
}

// Wait blocks until it is safe to make the next call for key, then records
// the new attempt timestamp, per the pacing policy.
func (p *Pacer) Wait(ctx context.Context, key string, policy PlatformPacing) error {
	p.mu.Lock()
	last, ok := p.lastAttemptAt[key]
	p.mu.Unlock()

	if ok {
		jitter := time.Duration(p.random()*float64(policy.JitterMs)) * time.Millisecond
		minInterval := time.Duration(policy.MinIntervalMs)*time.Millisecond + jitter
		elapsed := p.now().Sub(last)
		if wait := minInterval - elapsed; wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	p.mu.Lock()
	p.lastAttemptAt[key] = p.now()
	p.mu.Unlock()
	return nil
}
