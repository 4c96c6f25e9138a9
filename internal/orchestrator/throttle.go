package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/surfacehub/contractor-aggregator/internal/contractor"
)

// Throttle applies each source's declared rate limit as a token bucket. One
// Throttle is scoped to a single batch run so bucket state cannot bleed
// across runs.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	defaults map[string]contractor.SourceDescriptor
}

// NewThrottle builds buckets for the given sources.
func NewThrottle(sources []contractor.SourceDescriptor) *Throttle {
	defaults := make(map[string]contractor.SourceDescriptor, len(sources))
	for _, d := range sources {
		defaults[d.ID] = d
	}
	return &Throttle{
		limiters: make(map[string]*rate.Limiter, len(sources)),
		defaults: defaults,
	}
}

// Wait blocks until the source's bucket grants a token or ctx ends.
func (t *Throttle) Wait(ctx context.Context, sourceID string) error {
	t.mu.Lock()
	limiter, ok := t.limiters[sourceID]
	if !ok {
		limiter = t.newLimiter(sourceID)
		t.limiters[sourceID] = limiter
	}
	t.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		// Wait fails only when ctx is done or its deadline cannot cover the
		// token delay, so a throttle failure is always deadline cancellation.
		return fmt.Errorf("%w: rate limit wait for %s: %v", contractor.ErrAborted, sourceID, err)
	}
	return nil
}

func (t *Throttle) newLimiter(sourceID string) *rate.Limiter {
	d, ok := t.defaults[sourceID]
	if !ok || d.RateRPS <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := d.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(d.RateRPS), burst)
}
