package statement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/service/balance"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Reader never takes locks: entries are append only, so a reader sees either all or nothing of a transaction
type Reader struct {
	storage repository.Storage
}

func NewReader(storage repository.Storage) *Reader {
	return &Reader{storage: storage}
}

// GetStatement returns entries created within [from, to] and the balances around them
func (r *Reader) GetStatement(ctx context.Context, ownerID uuid.UUID, from time.Time, to time.Time) (models.Statement, error) {
	if from.After(to) {
		return models.Statement{}, apperrors.ErrInvalidPeriod
	}

	wallet, err := r.storage.Wallet().GetWalletByOwner(ctx, ownerID)
	if err != nil {
		return models.Statement{}, err
	}

	entries, err := r.storage.Ledger().ListEntries(ctx, repository.ListEntriesOpts{
		WalletID: wallet.ID,
		From:     &from,
		To:       &to,
	})
	if err != nil {
		return models.Statement{}, err
	}

	closing, err := balance.NewResolver(r.storage.Ledger()).ResolveAt(ctx, wallet.ID, to)
	if err != nil {
		return models.Statement{}, err
	}

	moved := decimal.Zero
	for _, e := range entries {
		moved = moved.Add(e.SignedAmount())
	}

	return models.Statement{
		WalletID:       wallet.ID,
		OwnerID:        wallet.OwnerID,
		Currency:       wallet.Currency,
		From:           from,
		To:             to,
		OpeningBalance: closing.Sub(moved),
		ClosingBalance: closing,
		Entries:        entries,
	}, nil
}

// GetHistory returns one page of wallet entries, newest first.
// Zero page or page size fall back to defaults, page size is capped by MaxPageSize.
func (r *Reader) GetHistory(ctx context.Context, ownerID uuid.UUID, page int, pageSize int) (models.HistoryPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	wallet, err := r.storage.Wallet().GetWalletByOwner(ctx, ownerID)
	if err != nil {
		return models.HistoryPage{}, err
	}

	opts := repository.ListEntriesOpts{WalletID: wallet.ID}
	total, err := r.storage.Ledger().CountEntries(ctx, opts)
	if err != nil {
		return models.HistoryPage{}, err
	}

	opts.Limit = pageSize
	opts.Offset = (page - 1) * pageSize
	entries, err := r.storage.Ledger().ListEntries(ctx, opts)
	if err != nil {
		return models.HistoryPage{}, err
	}

	return models.HistoryPage{
		WalletID: wallet.ID,
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func normalizePage(page int, pageSize int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}

	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	return page, pageSize
}
