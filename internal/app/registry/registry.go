// Package registry builds and serves the process-wide, read-only catalog of
// provider definitions. It is grounded on the teacher's immutable
// definition-struct-plus-constant-enum shape in internal/app/domain/gasbank,
// generalized here to a map keyed by slug instead of a single well-known
// account kind.
package registry

import (
	"fmt"
	"sort"

	"github.com/enrichlayer/core/internal/app/apierr"
	"github.com/enrichlayer/core/internal/app/domain/provider"
)

// Registry is the immutable, process-wide provider catalog. Safe for
// concurrent read access from any number of goroutines once constructed;
// it exposes no mutation methods.
type Registry struct {
	bySlug map[string]provider.Definition
	// order preserves construction order so getAllProviders is deterministic
	// for tests and for the YAML-driven default ordering.
	order []string
}

// New validates and constructs a Registry from defs. Construction fails if
// two definitions share a slug or any cost is not a positive integer.
func New(defs []provider.Definition) (*Registry, error) {
	bySlug := make(map[string]provider.Definition, len(defs))
	order := make([]string, 0, len(defs))
	for _, d := range defs {
		if d.Slug == "" {
			return nil, apierr.Validation("provider definition missing slug")
		}
		if _, exists := bySlug[d.Slug]; exists {
			return nil, apierr.Validation("duplicate provider slug: %s", d.Slug)
		}
		if d.CreditCostPerCall <= 0 {
			return nil, apierr.Validation("provider %s: creditCostPerCall must be a positive integer, got %d", d.Slug, d.CreditCostPerCall)
		}
		bySlug[d.Slug] = d
		order = append(order, d.Slug)
	}
	return &Registry{bySlug: bySlug, order: order}, nil
}

// GetProvider returns the definition for slug, or false if unknown.
func (r *Registry) GetProvider(slug string) (provider.Definition, bool) {
	d, ok := r.bySlug[slug]
	return d, ok
}

// GetAllProviders returns every definition in catalog order.
func (r *Registry) GetAllProviders() []provider.Definition {
	out := make([]provider.Definition, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.bySlug[slug])
	}
	return out
}

// GetProvidersForField returns every provider supporting field, in catalog
// order; cost plays no part in the ordering.
func (r *Registry) GetProvidersForField(field provider.Field) []provider.Definition {
	out := make([]provider.Definition, 0)
	for _, slug := range r.order {
		d := r.bySlug[slug]
		if d.SupportsField(field) {
			out = append(out, d)
		}
	}
	return out
}

// ValidateProviders reports a ValidationError naming every slug in slugs
// that isn't in the catalog, or nil if all are known.
func (r *Registry) ValidateProviders(slugs []string) error {
	var unknown []string
	for _, s := range slugs {
		if _, ok := r.bySlug[s]; !ok {
			unknown = append(unknown, s)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return apierr.Validation("unknown: %v", unknown)
	}
	return nil
}

// cheapestForField returns the lowest creditCostPerCall among providers
// supporting field, or (0, false) if none support it.
func (r *Registry) cheapestForField(field provider.Field) (int, bool) {
	best := 0
	found := false
	for _, slug := range r.order {
		d := r.bySlug[slug]
		if !d.SupportsField(field) {
			continue
		}
		if !found || d.CreditCostPerCall < best {
			best = d.CreditCostPerCall
			found = true
		}
	}
	return best, found
}

// EstimateCredits computes the optimistic credit cost of enriching records
// records across fields, honoring waterfallConfig per spec 4.1: a field with
// a configured waterfall uses its first provider's cost (optimistic — the
// waterfall may stop earlier); an unconfigured field uses the cheapest
// supporting provider's cost. A field with no supporting providers at all
// contributes zero. An unknown slug named as a waterfall head is a
// ValidationError.
func (r *Registry) EstimateCredits(records int, fields []provider.Field, waterfallConfig provider.WaterfallConfig) (int, error) {
	total := 0
	for _, field := range fields {
		var perRecordCost int
		if wf, ok := waterfallConfig[field]; ok && len(wf.Providers) > 0 {
			head := wf.Providers[0]
			d, ok := r.bySlug[head]
			if !ok {
				return 0, apierr.Validation("unknown waterfall provider for field %s: %s", field, head)
			}
			perRecordCost = d.CreditCostPerCall
		} else {
			cost, ok := r.cheapestForField(field)
			if !ok {
				perRecordCost = 0
			} else {
				perRecordCost = cost
			}
		}
		total += perRecordCost * records
	}
	return total, nil
}

// ResolveFieldProviders computes the ordered provider slug list the
// workflow will walk for one field: the waterfall order if configured,
// otherwise every provider supporting the field in catalog order. Used by
// the Enrichment Service to precompute fieldProviders before the job is
// handed to the workflow engine (the workflow itself never touches the
// registry directly).
func (r *Registry) ResolveFieldProviders(field provider.Field, waterfallConfig provider.WaterfallConfig) []string {
	if wf, ok := waterfallConfig[field]; ok && len(wf.Providers) > 0 {
		out := make([]string, len(wf.Providers))
		copy(out, wf.Providers)
		return out
	}
	defs := r.GetProvidersForField(field)
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Slug)
	}
	return out
}

// String implements fmt.Stringer for debug logging.
func (r *Registry) String() string {
	return fmt.Sprintf("registry{providers=%d}", len(r.order))
}
