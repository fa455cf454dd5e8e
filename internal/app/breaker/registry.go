package breaker

import "sync"

// Registry lazily creates and hands out one Breaker per provider slug,
// matching spec 2's ownership rule that CircuitBreakerState is process-wide
// and keyed per provider slug (unlike workspace-scoped state elsewhere).
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry builds a Registry that constructs every breaker with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for slug, creating it on first access.
func (r *Registry) For(slug string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[slug]
	if !ok {
		b = New(r.cfg)
		r.breakers[slug] = b
	}
	return b
}
