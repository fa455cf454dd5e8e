package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/enrichlayer/core/internal/app/credit"
	domaincredit "github.com/enrichlayer/core/internal/app/domain/credit"
	"github.com/enrichlayer/core/internal/app/enrichment"
	"github.com/enrichlayer/core/internal/app/registry"
	"github.com/enrichlayer/core/internal/app/storage/memory"
	"github.com/enrichlayer/core/internal/app/vault"
	"github.com/enrichlayer/core/internal/app/webhook"
	"github.com/enrichlayer/core/internal/app/workflow"
	"github.com/enrichlayer/core/pkg/logger"
)

// fakeCreditStore mirrors internal/app/credit/service_test.go's fakeStore:
// a sqlmock-backed *sqlx.DB carries the real BeginTx/Commit/Rollback
// lifecycle while row data lives in a plain map.
type fakeCreditStore struct {
	db      *sqlx.DB
	billing map[string]domaincredit.BillingRecord
}

func newFakeCreditStore(t *testing.T) credit.Store {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	return &fakeCreditStore{db: sqlx.NewDb(rawDB, "sqlmock"), billing: make(map[string]domaincredit.BillingRecord)}
}

func (f *fakeCreditStore) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return f.db.BeginTxx(ctx, nil)
}

func (f *fakeCreditStore) GetBillingForUpdate(ctx context.Context, tx *sqlx.Tx, workspaceID string) (domaincredit.BillingRecord, error) {
	b, ok := f.billing[workspaceID]
	if !ok {
		b = domaincredit.BillingRecord{WorkspaceID: workspaceID, CurrentBalance: 1000}
		f.billing[workspaceID] = b
	}
	return b, nil
}

func (f *fakeCreditStore) UpdateBalance(ctx context.Context, tx *sqlx.Tx, workspaceID string, newBalance int) error {
	b := f.billing[workspaceID]
	b.WorkspaceID = workspaceID
	b.CurrentBalance = newBalance
	f.billing[workspaceID] = b
	return nil
}

func (f *fakeCreditStore) InsertTransaction(ctx context.Context, tx *sqlx.Tx, txn domaincredit.Transaction) error {
	return nil
}

func (f *fakeCreditStore) GetBilling(ctx context.Context, workspaceID string) (domaincredit.BillingRecord, bool, error) {
	b, ok := f.billing[workspaceID]
	return b, ok, nil
}

func (f *fakeCreditStore) ListTransactions(ctx context.Context, workspaceID string, page, limit int) (domaincredit.Page, error) {
	return domaincredit.Page{}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.NewDefault("httpapi_test")

	reg, err := registry.New(nil)
	require.NoError(t, err)

	creditSvc := credit.New(newFakeCreditStore(t), log)

	mk, err := vault.NewMasterKey(make([]byte, 32))
	require.NoError(t, err)
	vaultSvc := vault.New(memory.NewVaultStore(), log)

	jobStore := memory.NewJobStore()
	recordStore := memory.NewRecordStore()
	wfClient := workflow.NewInProcessClient(func(ctx context.Context, in workflow.Input, cancelled func() bool) error { return nil })
	enrichmentSvc := enrichment.NewService(reg, creditSvc, wfClient, jobStore, recordStore, log)

	webhookSvc := webhook.New(memory.NewWebhookStore(), log)

	audit := newAuditLog(50, nil)

	return NewRouter(enrichmentSvc, creditSvc, vaultSvc, mk, webhookSvc, audit, log, nil, nil)
}

func TestHealthDoesNotRequireWorkspaceHeader(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMissingWorkspaceHeaderIsRejected(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateJobEndToEnd(t *testing.T) {
	router := newTestRouter(t)
	body := strings.NewReader(`{"records":[],"fields":[],"waterfallConfig":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", body)
	req.Header.Set("X-Workspace-ID", "ws-1")
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestAdminAuditRecordsRequests(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("X-Workspace-ID", "ws-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	// give the audit middleware's synchronous write a moment to land; it is
	// not async today but this guards against a future change making it so.
	time.Sleep(0)

	auditReq := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, auditReq)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"path":"/v1/jobs"`)
}
