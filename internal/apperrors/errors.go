package apperrors

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validation errors: rejected before any lock or write
var (
	ErrSelfTransfer           = errors.New("source and destination wallet are the same")
	ErrCurrencyMismatch       = errors.New("wallet currencies do not match")
	ErrCurrencyInvalid        = errors.New("currency code is invalid")
	ErrAmountNotPositive      = errors.New("amount must be positive")
	ErrAmountInvalid          = errors.New("amount has more than two fractional digits")
	ErrTransactionTypeInvalid = errors.New("transaction type is not allowed for this operation")
	ErrInvalidPeriod          = errors.New("period start is after period end")

	ErrWalletAlreadyExists = errors.New("wallet already exists for owner")
	ErrOwnerAlreadyExists  = errors.New("owner already exists")
	ErrOwnerNotFound       = errors.New("owner not found")
	ErrOwnerKindInvalid    = errors.New("owner kind is invalid")
)

// State errors
var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletSuspended     = errors.New("wallet is suspended")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrEntryNotFound       = errors.New("entry not found")
)

// Contention errors
var (
	ErrLockTimeout          = errors.New("wallet lock wait timeout")
	ErrDuplicateTransaction = errors.New("transaction with idempotency key already exists")
	ErrIdempotencyKeyReused = errors.New("idempotency key already used for a different operation")
)

// ErrInvariantViolation is matched by every *InvariantError
var ErrInvariantViolation = errors.New("ledger invariant violated")

// InvariantError describes ledger state that must never be persisted.
// Getting one means there is a bug, not a user mistake.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant %q violated: %s", e.Invariant, e.Detail)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// Log invariant and detail as separate attributes
func (e *InvariantError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("invariant", e.Invariant),
		slog.String("detail", e.Detail),
	)
}

func NewInvariantError(invariant string, format string, args ...any) *InvariantError {
	return &InvariantError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}
