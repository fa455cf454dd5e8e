// Package enrichment implements the Enrichment Service, the Enrichment
// Activity, and the Enrichment Workflow driver: spec 4.6-4.8's "hard core"
// of the system. Grounded on internal/app/services' activity-as-a-method
// shape, generalized from the teacher's single blockchain-transaction
// activity to the ordered, refund-symmetric steps this spec requires.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/enrichlayer/core/internal/app/apierr"
	"github.com/enrichlayer/core/internal/app/breaker"
	"github.com/enrichlayer/core/internal/app/credit"
	domainenrichment "github.com/enrichlayer/core/internal/app/domain/enrichment"
	"github.com/enrichlayer/core/internal/app/domain/provider"
	domainvault "github.com/enrichlayer/core/internal/app/domain/vault"
	"github.com/enrichlayer/core/internal/app/registry"
	"github.com/enrichlayer/core/internal/app/vault"
	"github.com/enrichlayer/core/infrastructure/metrics"
	"github.com/enrichlayer/core/pkg/logger"
)

// adapterTimeout is the 30s start-to-close bound spec 4.7 places on every
// enrichRecord invocation of a provider adapter.
const adapterTimeout = 30 * time.Second

// ActivityInput is spec 4.7's {jobId, workspaceId, recordIndex, inputData,
// fieldName, providerSlug, idempotencyKey}.
type ActivityInput struct {
	JobID          string
	WorkspaceID    string
	RecordIndex    int
	InputData      map[string]interface{}
	FieldName      provider.Field
	ProviderSlug   string
	IdempotencyKey string
}

// ActivityResult is spec 4.7's {success, data?, isComplete, providerSlug,
// creditsConsumed, error?}.
type ActivityResult struct {
	Success         bool
	Data            map[string]interface{}
	IsComplete      bool
	ProviderSlug    string
	CreditsConsumed int
	Error           string
}

// Activity wires the registry, circuit breakers, credit ledger, and
// credential vault into the single enrichRecord entry point the workflow
// driver calls once per (record, field, provider) waterfall step.
type Activity struct {
	registry  *registry.Registry
	breakers  *breaker.Registry
	credits   *credit.Service
	creds     *vault.Service
	masterKey vault.MasterKey
	records   RecordStore
	log       *logger.Logger
	clock     func() time.Time
	metrics   *metrics.Metrics
}

// ActivityOption customizes an Activity built by NewActivity.
type ActivityOption func(*Activity)

// WithActivityMetrics attaches a Metrics instance so every EnrichRecord
// call and breaker transition also updates the Prometheus series cmd/appserver
// exposes at /metrics.
func WithActivityMetrics(m *metrics.Metrics) ActivityOption {
	return func(a *Activity) { a.metrics = m }
}

func NewActivity(reg *registry.Registry, breakers *breaker.Registry, credits *credit.Service, creds *vault.Service, masterKey vault.MasterKey, records RecordStore, log *logger.Logger, opts ...ActivityOption) *Activity {
	a := &Activity{
		registry:  reg,
		breakers:  breakers,
		credits:   credits,
		creds:     creds,
		masterKey: masterKey,
		records:   records,
		log:       log,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EnrichRecord implements spec 4.7's ten strictly-ordered steps. A non-nil
// error signals a transient, retryable condition (infra failure); every
// business outcome — including provider/adapter failures and breaker
// refusals — is reported as a non-error ActivityResult with Success=false,
// since those are terminal for this attempt and the workflow's waterfall
// loop, not the outer retry policy, decides what happens next.
func (a *Activity) EnrichRecord(ctx context.Context, in ActivityInput) (result ActivityResult, err error) {
	if a.metrics != nil {
		start := time.Now()
		defer func() {
			outcome := "success"
			switch {
			case err != nil:
				outcome = "error"
			case !result.Success:
				outcome = "failure"
			}
			a.metrics.RecordEnrichmentCall(in.ProviderSlug, outcome, time.Since(start))
		}()
	}

	// Step 1: idempotency probe.
	if existing, ok, err := a.records.GetByIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
		return ActivityResult{}, apierr.Internal(fmt.Errorf("idempotency probe: %w", err))
	} else if ok {
		return resultFromRecord(existing), nil
	}

	// Step 2: provider lookup.
	def, ok := a.registry.GetProvider(in.ProviderSlug)
	if !ok {
		return ActivityResult{Success: false, ProviderSlug: in.ProviderSlug, Error: fmt.Sprintf("unknown provider: %s", in.ProviderSlug)}, nil
	}

	// Step 3: circuit breaker gate.
	cb := a.breakers.For(in.ProviderSlug)
	if !cb.CanCall() {
		a.recordBreakerState(in.ProviderSlug, cb)
		return a.persistFailure(ctx, in, def, "", "Circuit breaker open", 0)
	}
	a.recordBreakerState(in.ProviderSlug, cb)

	// Step 4: debit credits.
	debitRef := in.IdempotencyKey
	debitTxn, err := a.credits.Debit(ctx, in.WorkspaceID, def.CreditCostPerCall,
		fmt.Sprintf("Enrichment call: %s/%s", def.Slug, in.FieldName), debitRef)
	if err != nil {
		if apierr.CodeOf(err) == apierr.CodeInsufficientCredits {
			return a.persistFailure(ctx, in, def, "", "Insufficient credits", 0)
		}
		return ActivityResult{}, fmt.Errorf("debit credits: %w", err)
	}

	// From here on, any non-success outcome must refund debitTxn.Amount.
	refund := func(reason string) {
		if _, rerr := a.credits.Refund(ctx, in.WorkspaceID, def.CreditCostPerCall,
			fmt.Sprintf("Refund: %s", reason), debitTxn.ID); rerr != nil {
			a.log.WithField("idempotency_key", in.IdempotencyKey).Errorf("failed to refund credits after %s: %v", reason, rerr)
		}
	}

	// Step 5: fetch credential.
	cred, ok, err := a.creds.GetForProvider(ctx, in.WorkspaceID, def.Slug)
	if err != nil {
		refund("credential lookup error")
		return ActivityResult{}, fmt.Errorf("fetch credential: %w", err)
	}
	if !ok {
		refund("missing credentials")
		reason := fmt.Sprintf("Missing credentials for provider %s", def.Slug)
		return a.persistFailure(ctx, in, def, debitTxn.ID, reason, 0)
	}

	// Step 6: decrypt.
	decrypted, err := a.creds.DecryptCredential(ctx, a.masterKey, cred.ID)
	if err != nil {
		refund("decryption failure")
		return a.persistFailure(ctx, in, def, debitTxn.ID, fmt.Sprintf("Failed to decrypt credentials: %v", err), 0)
	}

	// Step 7: invoke provider adapter under its 30s bound.
	callCtx, cancel := context.WithTimeout(ctx, adapterTimeout)
	defer cancel()
	adapterResult, err := a.callAdapter(callCtx, def, decrypted, in.InputData)
	if err != nil {
		cb.RecordFailure()
		a.recordBreakerState(in.ProviderSlug, cb)
		refund("adapter error")
		return a.persistFailure(ctx, in, def, debitTxn.ID, err.Error(), 0)
	}

	if !adapterResult.Success {
		// Step 10: adapter-signalled failure.
		cb.RecordFailure()
		a.recordBreakerState(in.ProviderSlug, cb)
		refund("adapter reported failure")
		reason := adapterResult.Error
		if reason == "" {
			reason = "provider adapter reported failure"
		}
		return a.persistFailure(ctx, in, def, debitTxn.ID, reason, 0)
	}

	// Step 8: validate output schema.
	if err := validateSchema(def.OutputSchema, adapterResult.Data); err != nil {
		cb.RecordFailure()
		a.recordBreakerState(in.ProviderSlug, cb)
		refund("output schema validation failure")
		return a.persistFailure(ctx, in, def, debitTxn.ID, fmt.Sprintf("Output schema validation failed: %v", err), 0)
	}

	// Step 9: success path.
	cb.RecordSuccess()
	a.recordBreakerState(in.ProviderSlug, cb)
	rec := domainenrichment.EnrichmentRecord{
		JobID:               in.JobID,
		WorkspaceID:         in.WorkspaceID,
		RecordIndex:         in.RecordIndex,
		FieldName:           in.FieldName,
		InputData:           in.InputData,
		OutputData:          adapterResult.Data,
		ProviderSlug:        def.Slug,
		CreditsConsumed:     def.CreditCostPerCall,
		Status:              domainenrichment.RecordSuccess,
		IsComplete:          adapterResult.IsComplete,
		IdempotencyKey:      in.IdempotencyKey,
		CreditTransactionID: debitTxn.ID,
		CreatedAt:           a.clock(),
	}
	if err := a.insertRecord(ctx, rec); err != nil {
		return ActivityResult{}, err
	}
	return ActivityResult{
		Success:         true,
		Data:            adapterResult.Data,
		IsComplete:      adapterResult.IsComplete,
		ProviderSlug:    def.Slug,
		CreditsConsumed: def.CreditCostPerCall,
	}, nil
}

// recordBreakerState reports cb's current state as a metrics gauge/counter
// pair for provider, a no-op when no Metrics was attached.
func (a *Activity) recordBreakerState(providerSlug string, cb *breaker.Breaker) {
	if a.metrics == nil {
		return
	}
	state := cb.State()
	a.metrics.RecordBreakerState(providerSlug, int(state), state.String())
}

func (a *Activity) callAdapter(ctx context.Context, def provider.Definition, decrypted domainvault.Decrypted, inputData map[string]interface{}) (provider.AdapterResult, error) {
	if def.Adapter == nil {
		return provider.AdapterResult{}, errors.New("provider adapter not configured")
	}
	return def.Adapter.Enrich(ctx, provider.Credentials{Key: decrypted.Key, Secret: decrypted.Secret}, inputData)
}

// persistFailure writes the terminal failed EnrichmentRecord for this
// attempt and returns the non-retryable ActivityResult. creditTransactionID
// is empty for failures that happened before any debit occurred (steps 3-4).
func (a *Activity) persistFailure(ctx context.Context, in ActivityInput, def provider.Definition, creditTransactionID, reason string, creditsConsumed int) (ActivityResult, error) {
	rec := domainenrichment.EnrichmentRecord{
		JobID:               in.JobID,
		WorkspaceID:         in.WorkspaceID,
		RecordIndex:         in.RecordIndex,
		FieldName:           in.FieldName,
		InputData:           in.InputData,
		ProviderSlug:        def.Slug,
		CreditsConsumed:     creditsConsumed,
		Status:              domainenrichment.RecordFailed,
		ErrorReason:         reason,
		IdempotencyKey:      in.IdempotencyKey,
		CreditTransactionID: creditTransactionID,
		CreatedAt:           a.clock(),
	}
	if err := a.insertRecord(ctx, rec); err != nil {
		return ActivityResult{}, err
	}
	return ActivityResult{Success: false, ProviderSlug: def.Slug, Error: reason}, nil
}

// insertRecord performs the UNIQUE-idempotencyKey insert-or-read-back. A
// concurrent retry racing this one converges on whichever row won, per
// spec 4.7's "exactly one EnrichmentRecord per invocation" invariant.
func (a *Activity) insertRecord(ctx context.Context, rec domainenrichment.EnrichmentRecord) error {
	if _, _, err := a.records.InsertIfAbsent(ctx, rec); err != nil {
		return apierr.Internal(fmt.Errorf("persist enrichment record: %w", err))
	}
	return nil
}

func resultFromRecord(rec domainenrichment.EnrichmentRecord) ActivityResult {
	return ActivityResult{
		Success:         rec.Status == domainenrichment.RecordSuccess,
		Data:            rec.OutputData,
		IsComplete:      rec.IsComplete,
		ProviderSlug:    rec.ProviderSlug,
		CreditsConsumed: rec.CreditsConsumed,
		Error:           rec.ErrorReason,
	}
}

// validateSchema checks that every required field in schema is present and
// non-nil in data, matching the typed-struct validator spec's redesign note
// calls for in place of a general JSON-schema engine. Field names may be
// gjson dotted paths (e.g. "company_info.name") to reach into a nested
// adapter response without a full struct unmarshal; re-marshaling data back
// to JSON here is cheap relative to the adapter call it follows.
func validateSchema(schema provider.Schema, data map[string]interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal adapter output: %w", err)
	}

	var missing []string
	for _, name := range schema.RequiredFieldNames() {
		result := gjson.GetBytes(raw, name)
		if !result.Exists() || result.Type == gjson.Null {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %v", missing)
	}
	return nil
}
