// Package resilience provides pacing, rate limiting, and circuit breaker
// primitives for calls to external providers.
package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer throttles outbound provider calls. Wait blocks until the next
// call may proceed; Cooldown imposes an extended pause after the caller
// observed a transient failure (rate limit, network hiccup). All
// implementations are safe for concurrent use.
type Pacer interface {
	Wait(ctx context.Context) error
	Cooldown()
}

// FixedPacer enforces a fixed minimum spacing between calls with no
// burst credit. It is the default pacing policy for embedding calls:
// providers with per-minute ceilings are happiest with steady traffic.
type FixedPacer struct {
	lim  *rate.Limiter
	cool time.Duration

	mu    sync.Mutex
	until time.Time
}

// NewFixedPacer creates a pacer that allows one call per `every` and
// pauses for `cooldown` after each Cooldown signal.
func NewFixedPacer(every, cooldown time.Duration) *FixedPacer {
	if every <= 0 {
		every = 150 * time.Millisecond
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &FixedPacer{
		lim:  rate.NewLimiter(rate.Every(every), 1),
		cool: cooldown,
	}
}

// Wait blocks until the inter-call spacing and any active cool-down
// have elapsed, or ctx is done.
func (p *FixedPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	pause := time.Until(p.until)
	p.mu.Unlock()

	if pause > 0 {
		timer := time.NewTimer(pause)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return p.lim.Wait(ctx)
}

// Cooldown starts the extended pause. Subsequent Waits block until it
// has elapsed. Overlapping cool-downs do not stack.
func (p *FixedPacer) Cooldown() {
	p.mu.Lock()
	if until := time.Now().Add(p.cool); until.After(p.until) {
		p.until = until
	}
	p.mu.Unlock()
}
