package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/enrichlayer/core/infrastructure/metrics"
	domaincredit "github.com/enrichlayer/core/internal/app/domain/credit"
)

// EventPublisher ships committed ledger mutations to an analytical sink.
// Per SPEC_FULL §C.2, failures here never block or roll back the ledger
// commit that produced the event — best-effort, same posture as webhook
// delivery.
type EventPublisher interface {
	Publish(ctx context.Context, txn domaincredit.Transaction, balanceAfter int)
}

// NoopPublisher discards every event; the default when no ClickHouse
// endpoint is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domaincredit.Transaction, int) {}

// clickHouseEvent is the row shape inserted into the credit_events table.
type clickHouseEvent struct {
	EventTime    string `json:"event_time"`
	WorkspaceID  string `json:"workspace_id"`
	TxType       string `json:"tx_type"`
	Amount       int    `json:"amount"`
	BalanceAfter int    `json:"balance_after"`
	ReferenceID  string `json:"reference_id"`
	Description  string `json:"description"`
}

// ClickHouseHTTPPublisher inserts credit_events rows over ClickHouse's
// HTTP interface (`POST /?query=INSERT INTO credit_events FORMAT JSONEachRow`).
// No ClickHouse Go driver appears anywhere in the retrieved pack, so this
// talks to ClickHouse directly over net/http rather than fabricating a
// driver dependency (see DESIGN.md).
type ClickHouseHTTPPublisher struct {
	Endpoint string // e.g. http://clickhouse:8123
	Client   *http.Client
}

func NewClickHouseHTTPPublisher(endpoint string) *ClickHouseHTTPPublisher {
	return &ClickHouseHTTPPublisher{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *ClickHouseHTTPPublisher) Publish(ctx context.Context, txn domaincredit.Transaction, balanceAfter int) {
	if p == nil || p.Endpoint == "" {
		return
	}
	row := clickHouseEvent{
		EventTime:    txn.CreatedAt.UTC().Format(time.RFC3339),
		WorkspaceID:  txn.WorkspaceID,
		TxType:       string(txn.Type),
		Amount:       txn.Amount,
		BalanceAfter: balanceAfter,
		ReferenceID:  txn.ReferenceID,
		Description:  txn.Description,
	}
	body, err := json.Marshal(row)
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/?query=%s", p.Endpoint, "INSERT+INTO+credit_events+FORMAT+JSONEachRow")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
}

// MetricsPublisher updates the Prometheus credit series on every committed
// ledger mutation, the same event cmd/appserver also fans out to
// ClickHouse via ClickHouseHTTPPublisher.
type MetricsPublisher struct {
	Metrics *metrics.Metrics
}

func (p MetricsPublisher) Publish(ctx context.Context, txn domaincredit.Transaction, balanceAfter int) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.RecordCreditTransaction(string(txn.Type), txn.WorkspaceID, balanceAfter)
}

// MultiPublisher fans one event out to every wrapped EventPublisher, so
// cmd/appserver can combine MetricsPublisher and ClickHouseHTTPPublisher
// (or any other sink) without the Service needing to know there is more
// than one.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, txn domaincredit.Transaction, balanceAfter int) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, txn, balanceAfter)
		}
	}
}
