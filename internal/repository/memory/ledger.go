package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
)

type LedgerRepo struct {
	s *Storage
}

func (r *LedgerRepo) CreateTransaction(ctx context.Context, t models.Transaction) error {
	if t.IdempotencyKey != nil {
		if _, err := r.GetTransactionByIdempotencyKey(ctx, t.CreatedBy, *t.IdempotencyKey); err == nil {
			return apperrors.ErrDuplicateTransaction
		}
	}

	return r.s.write(func(c *changes) {
		c.transactions = append(c.transactions, t)
	})
}

func (r *LedgerRepo) CreateEntry(ctx context.Context, e models.Entry) (models.Entry, error) {
	e.ID = r.s.st.allocEntryID()

	err := r.s.write(func(c *changes) {
		c.entries = append(c.entries, e)
	})
	if err != nil {
		return models.Entry{}, err
	}

	return e, nil
}

func (r *LedgerRepo) CreateManualTransfer(ctx context.Context, m models.ManualTransferRequest) error {
	return r.s.write(func(c *changes) {
		c.manual = append(c.manual, m)
	})
}

func (r *LedgerRepo) GetTransaction(ctx context.Context, txID uuid.UUID) (models.Transaction, error) {
	if r.s.tx != nil {
		for _, t := range r.s.tx.changes.transactions {
			if t.ID == txID {
				return t, nil
			}
		}
	}

	r.s.st.mu.RLock()
	defer r.s.st.mu.RUnlock()

	t, ok := r.s.st.transactions[txID]
	if !ok {
		return models.Transaction{}, apperrors.ErrTransactionNotFound
	}
	return t, nil
}

func (r *LedgerRepo) GetTransactionByIdempotencyKey(ctx context.Context, actorID uuid.UUID, key string) (models.Transaction, error) {
	want := idempotencyKey{actorID: actorID, key: key}
	if r.s.tx != nil {
		for _, t := range r.s.tx.changes.transactions {
			if t.IdempotencyKey != nil && keyOf(t) == want {
				return t, nil
			}
		}
	}

	r.s.st.mu.RLock()
	txID, ok := r.s.st.txByKey[want]
	r.s.st.mu.RUnlock()

	if !ok {
		return models.Transaction{}, apperrors.ErrTransactionNotFound
	}
	return r.GetTransaction(ctx, txID)
}

func (r *LedgerRepo) ListTransactionEntries(ctx context.Context, txID uuid.UUID) ([]models.Entry, error) {
	r.s.st.mu.RLock()
	entries := append([]models.Entry(nil), r.s.st.txEntries[txID]...)
	r.s.st.mu.RUnlock()

	if r.s.tx != nil {
		for _, e := range r.s.tx.changes.entries {
			if e.TransactionID == txID {
				entries = append(entries, e)
			}
		}
	}

	return entries, nil
}

func (r *LedgerRepo) LatestEntry(ctx context.Context, walletID uuid.UUID, upTo *time.Time) (models.Entry, error) {
	entries := r.s.walletEntries(walletID, nil, upTo)
	if len(entries) == 0 {
		return models.Entry{}, apperrors.ErrEntryNotFound
	}
	return entries[0], nil
}

func (r *LedgerRepo) SumEntries(ctx context.Context, walletID uuid.UUID, upTo *time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range r.s.walletEntries(walletID, nil, upTo) {
		sum = sum.Add(e.SignedAmount())
	}
	return sum, nil
}

func (r *LedgerRepo) ListEntries(ctx context.Context, opts repository.ListEntriesOpts) ([]models.Entry, error) {
	entries := r.s.walletEntries(opts.WalletID, opts.From, opts.To)

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return []models.Entry{}, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}

	return entries, nil
}

func (r *LedgerRepo) CountEntries(ctx context.Context, opts repository.ListEntriesOpts) (int, error) {
	return len(r.s.walletEntries(opts.WalletID, opts.From, opts.To)), nil
}
