package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/logger"
)

// Seconds a client should wait before retrying a request that hit a busy wallet
const lockRetryAfter = "1"

var errorResponses = []struct {
	err     error
	code    int
	message string
}{
	{apperrors.ErrSelfTransfer, http.StatusUnprocessableEntity, "Source and destination wallet are the same"},
	{apperrors.ErrCurrencyMismatch, http.StatusUnprocessableEntity, "Wallet currencies do not match"},
	{apperrors.ErrCurrencyInvalid, http.StatusUnprocessableEntity, "Invalid currency code"},
	{apperrors.ErrAmountNotPositive, http.StatusUnprocessableEntity, "Amount must be positive"},
	{apperrors.ErrAmountInvalid, http.StatusUnprocessableEntity, "Amount must have at most two fractional digits"},
	{apperrors.ErrTransactionTypeInvalid, http.StatusUnprocessableEntity, "Transaction type is not allowed"},
	{apperrors.ErrInvalidPeriod, http.StatusUnprocessableEntity, "Period start is after period end"},
	{apperrors.ErrOwnerKindInvalid, http.StatusUnprocessableEntity, "Invalid owner kind"},

	{apperrors.ErrWalletNotFound, http.StatusNotFound, "Wallet not found"},
	{apperrors.ErrOwnerNotFound, http.StatusNotFound, "Owner not found"},
	{apperrors.ErrTransactionNotFound, http.StatusNotFound, "Transaction not found"},

	{apperrors.ErrWalletAlreadyExists, http.StatusConflict, "Wallet already exists for owner"},
	{apperrors.ErrOwnerAlreadyExists, http.StatusConflict, "Owner already exists"},
	{apperrors.ErrIdempotencyKeyReused, http.StatusConflict, "Idempotency key already used for a different operation"},
	{apperrors.ErrDuplicateTransaction, http.StatusConflict, "Duplicate transaction"},

	{apperrors.ErrWalletSuspended, http.StatusPreconditionFailed, "Wallet is suspended"},
}

// renderError maps service errors to responses. Unknown errors are logged and hidden behind 500.
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	for _, r := range errorResponses {
		if errors.Is(err, r.err) {
			render.ServiceError(w, r.message, r.code)
			return
		}
	}

	switch {
	case errors.Is(err, apperrors.ErrLockTimeout):
		w.Header().Set("Retry-After", lockRetryAfter)
		render.ServiceError(w, "Wallet is busy, retry later", http.StatusServiceUnavailable)
	case errors.Is(err, apperrors.ErrInvariantViolation):
		l.Error("Ledger invariant violated", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	default:
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		render.ServiceError(w, "Invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
