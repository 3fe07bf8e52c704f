package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypeSale       TransactionType = "sale"
	TypeReceivable TransactionType = "receivable"
	TypeExpense    TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeSale, TypeReceivable, TypeExpense:
		return true
	}
	return false
}

// TransactionStatus is the approval state of a transaction.
// Transitions are one-way: Pending may move to Approved or Rejected once,
// and never back.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
)

// Transaction is one recorded ledger entry. Records are created once and
// afterwards mutated only by an approve or reject transition; they are
// never deleted.
type Transaction struct {
	ID            string            `json:"id"`
	ReferenceCode string            `json:"reference_code"` // globally unique, human-readable (PREFIX-YYYYMMDD-xxxxxxxx)
	OwnerID       string            `json:"owner_id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Description   string            `json:"description"`
	Counterparty  string            `json:"counterparty,omitempty"` // required when Type is Receivable
	Status        TransactionStatus `json:"status"`
	ApproverID    string            `json:"approver_id,omitempty"`
	RejectReason  string            `json:"reject_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ApprovedAt    *time.Time        `json:"approved_at,omitempty"`
}

// Settled reports whether the transaction has left the Pending state.
func (t *Transaction) Settled() bool {
	return t.Status == StatusApproved || t.Status == StatusRejected
}

// ValidateNew checks the creation invariants: a positive amount, a known
// type, and a counterparty name when the type is Receivable.
func (t *Transaction) ValidateNew() error {
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "unknown transaction type " + string(t.Type)}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "amount must be greater than zero"}
	}
	if t.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Reason: "owner is required"}
	}
	if t.Type == TypeReceivable && t.Counterparty == "" {
		return &ValidationError{Field: "counterparty", Reason: "counterparty name is required for receivables"}
	}
	return nil
}
