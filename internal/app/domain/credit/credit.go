// Package credit holds the Credit Ledger's data shapes. Behavior lives in
// internal/app/credit; this split mirrors domain/gasbank vs
// services/gasbank in the teacher.
package credit

import "time"

// TransactionType distinguishes ledger entry kinds. Only these two appear;
// auto-recharge is a purchase transaction described as "Auto-recharge".
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionUsage    TransactionType = "usage"
)

// BillingRecord is one workspace's current balance and auto-recharge policy.
type BillingRecord struct {
	WorkspaceID     string
	CurrentBalance  int
	AutoRecharge    bool
	Threshold       int
	RechargeAmount  int
	UpdatedAt       time.Time
}

// Transaction is one append-only ledger entry. Amount is signed: positive
// for purchase, negative for usage.
type Transaction struct {
	ID          string
	WorkspaceID string
	Type        TransactionType
	Amount      int
	Description string
	ReferenceID string
	CreatedAt   time.Time
}

// Page is a reverse-chronological slice of the transaction log.
type Page struct {
	Transactions []Transaction
	Total        int
}
