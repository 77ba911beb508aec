package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer doubles the wait after each failed drain up to maxBackoff.
type pacer struct {
	interval time.Duration
	current  time.Duration
}

func newPacer(interval time.Duration) pacer {
	return pacer{interval: interval, current: interval}
}

func (p *pacer) reset() { p.current = p.interval }

func (p *pacer) idle() time.Duration {
	p.reset()
	return jittered(p.interval)
}

func (p *pacer) failure() time.Duration {
	p.current = min(p.current*2, maxBackoff)
	return jittered(p.current)
}

func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
