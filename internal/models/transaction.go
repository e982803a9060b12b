package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeManualCredit = "MANUAL_CREDIT"
	TransactionTypeManualDebit  = "MANUAL_DEBIT"
	TransactionTypeTransfer     = "TRANSFER"
	TransactionTypeDisbursement = "DISBURSEMENT"
	TransactionTypeRepayment    = "REPAYMENT"
)

const (
	TransactionStatusCompleted = "COMPLETED"

	// Reserved for asynchronous flows, never written by the ledger service yet
	TransactionStatusPending = "PENDING"
	TransactionStatusFailed  = "FAILED"
)

const (
	EntryTypeDebit  = "DEBIT"
	EntryTypeCredit = "CREDIT"
)

// Transaction is one money movement. Immutable once written: corrections are new, compensating transactions
type Transaction struct {
	ID          uuid.UUID
	Type        string
	Status      string
	Description string
	Amount      decimal.Decimal
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	CompletedAt *time.Time

	// Externally supplied date of the real world transfer (back-dated reconciliation)
	ActualTransferDate *time.Time
	Reference          string
	Remarks            string

	// Client supplied key to deduplicate retried requests, nil if not provided
	IdempotencyKey *string
}

// Entry debits or credits exactly one wallet.
// Amount is always positive, the sign is carried by Type.
type Entry struct {
	ID            int64
	TransactionID uuid.UUID
	WalletID      uuid.UUID
	Type          string
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	Sequence      int
	CreatedAt     time.Time
}

// SignedAmount returns amount with sign applied: credit adds, debit subtracts
func (e Entry) SignedAmount() decimal.Decimal {
	if e.Type == EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// ManualTransferRequest is the operator-entered audit record of a manual money movement
type ManualTransferRequest struct {
	ID                 uuid.UUID
	TransactionID      uuid.UUID
	PaymentMethod      string
	ReferenceNumber    string
	EnteredBy          uuid.UUID
	ProofAttachmentRef *string
	CreatedAt          time.Time
}

// TransactionView is a transaction with its one or two entries
type TransactionView struct {
	Transaction
	Entries []Entry

	// True when the transaction was found by idempotency key and nothing was written
	Replayed bool
}

// Entry returns the entry of the given type if transaction has one
func (v TransactionView) Entry(entryType string) (Entry, bool) {
	for _, e := range v.Entries {
		if e.Type == entryType {
			return e, true
		}
	}
	return Entry{}, false
}
