// Package balance derives wallet balance from ledger entries.
// Nothing else in the system stores a balance.
package balance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/repository"
)

type Resolver struct {
	ledger repository.LedgerRepo
}

// Resolver reads through the given repo, so inside transaction it sees transaction own entries
func NewResolver(ledger repository.LedgerRepo) *Resolver {
	return &Resolver{ledger: ledger}
}

// Resolve returns the current wallet balance
func (r *Resolver) Resolve(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	return r.resolve(ctx, walletID, nil)
}

// ResolveAt returns the balance after the last entry created not later than at
func (r *Resolver) ResolveAt(ctx context.Context, walletID uuid.UUID, at time.Time) (decimal.Decimal, error) {
	return r.resolve(ctx, walletID, &at)
}

func (r *Resolver) resolve(ctx context.Context, walletID uuid.UUID, upTo *time.Time) (decimal.Decimal, error) {
	latest, err := r.ledger.LatestEntry(ctx, walletID, upTo)

	switch {
	case err == nil:
		return latest.BalanceAfter, nil
	case errors.Is(err, apperrors.ErrEntryNotFound):
		// No snapshot to rely on: sum whatever there is, zero for an empty history
		return r.ledger.SumEntries(ctx, walletID, upTo)
	default:
		return decimal.Zero, err
	}
}
