package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichlayer/core/internal/app/apierr"
	"github.com/enrichlayer/core/internal/app/domain/provider"
)

func testDefs() []provider.Definition {
	return []provider.Definition{
		{Slug: "apollo", CreditCostPerCall: 2, SupportedFields: []provider.Field{"email", "phone"}},
		{Slug: "clearbit", CreditCostPerCall: 3, SupportedFields: []provider.Field{"email", "company_info"}},
		{Slug: "hunter", CreditCostPerCall: 1, SupportedFields: []provider.Field{"email"}},
	}
}

func TestNew_RejectsDuplicateSlug(t *testing.T) {
	defs := testDefs()
	defs = append(defs, provider.Definition{Slug: "hunter", CreditCostPerCall: 1})
	_, err := New(defs)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
}

func TestNew_RejectsNonPositiveCost(t *testing.T) {
	_, err := New([]provider.Definition{{Slug: "bad", CreditCostPerCall: 0}})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
}

func TestGetProvidersForField(t *testing.T) {
	r, err := New(testDefs())
	require.NoError(t, err)

	emailProviders := r.GetProvidersForField("email")
	require.Len(t, emailProviders, 3)

	phoneProviders := r.GetProvidersForField("phone")
	require.Len(t, phoneProviders, 1)
	assert.Equal(t, "apollo", phoneProviders[0].Slug)

	assert.Empty(t, r.GetProvidersForField("nonexistent_field"))
}

func TestValidateProviders(t *testing.T) {
	r, err := New(testDefs())
	require.NoError(t, err)

	assert.NoError(t, r.ValidateProviders([]string{"apollo", "hunter"}))

	err = r.ValidateProviders([]string{"apollo", "ghost"})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
}

func TestEstimateCredits_CheapestSupportingProvider(t *testing.T) {
	r, err := New(testDefs())
	require.NoError(t, err)

	// email: cheapest is hunter(1); phone: only apollo(2).
	credits, err := r.EstimateCredits(10, []provider.Field{"email", "phone"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10*1+10*2, credits)
}

func TestEstimateCredits_WaterfallUsesFirstProviderCost(t *testing.T) {
	r, err := New(testDefs())
	require.NoError(t, err)

	wf := provider.WaterfallConfig{
		"email": provider.WaterfallFieldConfig{Providers: []string{"clearbit", "hunter"}},
	}
	credits, err := r.EstimateCredits(5, []provider.Field{"email"}, wf)
	require.NoError(t, err)
	assert.Equal(t, 5*3, credits)
}

func TestEstimateCredits_UnknownWaterfallSlugIsValidationError(t *testing.T) {
	r, err := New(testDefs())
	require.NoError(t, err)

	wf := provider.WaterfallConfig{
		"email": provider.WaterfallFieldConfig{Providers: []string{"ghost"}},
	}
	_, err = r.EstimateCredits(5, []provider.Field{"email"}, wf)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))
}

func TestEstimateCredits_FieldWithNoProvidersContributesZero(t *testing.T) {
	r, err := New(testDefs())
	require.NoError(t, err)

	credits, err := r.EstimateCredits(100, []provider.Field{"nonexistent_field"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, credits)
}

func TestResolveFieldProviders_WaterfallOverridesDefault(t *testing.T) {
	r, err := New(testDefs())
	require.NoError(t, err)

	wf := provider.WaterfallConfig{
		"email": provider.WaterfallFieldConfig{Providers: []string{"clearbit", "hunter"}},
	}
	assert.Equal(t, []string{"clearbit", "hunter"}, r.ResolveFieldProviders("email", wf))
	assert.Equal(t, []string{"apollo", "clearbit", "hunter"}, r.ResolveFieldProviders("email", nil))
}
