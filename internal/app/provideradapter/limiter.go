package provideradapter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/enrichlayer/core/internal/app/domain/provider"
)

// Limiter wraps a provider.Adapter with a per-provider-slug token bucket,
// grounded on infrastructure/ratelimit/ratelimit.go's token-bucket shape but
// backed by golang.org/x/time/rate instead of a hand-rolled bucket. It sits
// alongside the circuit breaker in the activity's call path: the breaker
// decides whether to call at all, the limiter paces how fast calls go out
// once the breaker allows them.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   float64
	burst    int
}

// NewLimiter constructs a Limiter allowing perSec sustained calls per
// provider slug, bursting up to burst.
func NewLimiter(perSec float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiters: make(map[string]*rate.Limiter), perSec: perSec, burst: burst}
}

func (l *Limiter) forSlug(slug string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[slug]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.perSec), l.burst)
		l.limiters[slug] = lim
	}
	return lim
}

// Wrap returns an Adapter that blocks on slug's token bucket before
// delegating to next, so a waterfall burst against one provider can't
// exceed that provider's own rate limit even though every adapter shares
// the same activity call path.
func (l *Limiter) Wrap(slug string, next provider.Adapter) provider.Adapter {
	lim := l.forSlug(slug)
	return provider.AdapterFunc(func(ctx context.Context, creds provider.Credentials, inputData map[string]interface{}) (provider.AdapterResult, error) {
		if err := lim.Wait(ctx); err != nil {
			return provider.AdapterResult{}, err
		}
		return next.Enrich(ctx, creds, inputData)
	})
}
