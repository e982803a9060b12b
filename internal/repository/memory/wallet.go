package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

type WalletRepo struct {
	s *Storage
}

func (r *WalletRepo) CreateWallet(ctx context.Context, w models.Wallet) (models.Wallet, error) {
	if _, err := r.s.Owner().GetOwner(ctx, w.OwnerID); err != nil {
		return models.Wallet{}, err
	}

	_, err := r.GetWalletByOwner(ctx, w.OwnerID)
	switch {
	case err == nil:
		return models.Wallet{}, apperrors.ErrWalletAlreadyExists
	case !errors.Is(err, apperrors.ErrWalletNotFound):
		return models.Wallet{}, err
	}

	err = r.s.write(func(c *changes) {
		c.wallets = append(c.wallets, w)
	})
	if err != nil {
		return models.Wallet{}, err
	}

	return w, nil
}

func (r *WalletRepo) GetWalletByOwner(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error) {
	if r.s.tx != nil {
		for _, w := range r.s.tx.changes.wallets {
			if w.OwnerID == ownerID {
				return r.GetWallet(ctx, w.ID)
			}
		}
	}

	r.s.st.mu.RLock()
	walletID, ok := r.s.st.walletByOwner[ownerID]
	r.s.st.mu.RUnlock()

	if !ok {
		return models.Wallet{}, apperrors.ErrWalletNotFound
	}
	return r.GetWallet(ctx, walletID)
}

func (r *WalletRepo) GetWallet(ctx context.Context, walletID uuid.UUID) (models.Wallet, error) {
	if r.s.tx != nil {
		if w, ok := r.s.tx.changes.statuses[walletID]; ok {
			return w, nil
		}
		for _, w := range r.s.tx.changes.wallets {
			if w.ID == walletID {
				return w, nil
			}
		}
	}

	r.s.st.mu.RLock()
	defer r.s.st.mu.RUnlock()

	w, ok := r.s.st.wallets[walletID]
	if !ok {
		return models.Wallet{}, apperrors.ErrWalletNotFound
	}
	return w, nil
}

// Lock the wallet till the end of transaction.
// Outside of transaction the lock is released right away, same as postgres autocommit does.
func (r *WalletRepo) LockWallet(ctx context.Context, walletID uuid.UUID) (models.Wallet, error) {
	if _, err := r.GetWallet(ctx, walletID); err != nil {
		return models.Wallet{}, err
	}

	if r.s.tx == nil {
		if err := r.s.locks.acquire(ctx, walletID, r.s.lockTimeout); err != nil {
			return models.Wallet{}, err
		}
		defer r.s.locks.release(walletID)
		return r.GetWallet(ctx, walletID)
	}

	if _, held := r.s.tx.held[walletID]; !held {
		if err := r.s.locks.acquire(ctx, walletID, r.s.lockTimeout); err != nil {
			return models.Wallet{}, err
		}
		r.s.tx.held[walletID] = struct{}{}
	}

	// Reread: the wallet could be changed while we were waiting for the lock
	return r.GetWallet(ctx, walletID)
}

func (r *WalletRepo) SetStatus(ctx context.Context, walletID uuid.UUID, status string, updatedAt time.Time) (models.Wallet, error) {
	w, err := r.GetWallet(ctx, walletID)
	if err != nil {
		return models.Wallet{}, err
	}

	w.Status = status
	w.UpdatedAt = updatedAt

	err = r.s.write(func(c *changes) {
		c.statuses[walletID] = w
	})
	if err != nil {
		return models.Wallet{}, err
	}

	return w, nil
}

func (r *WalletRepo) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	r.s.st.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.s.st.wallets))
	for id := range r.s.st.wallets {
		ids = append(ids, id)
	}
	r.s.st.mu.RUnlock()

	if r.s.tx != nil {
		for _, w := range r.s.tx.changes.wallets {
			ids = append(ids, w.ID)
		}
	}

	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})

	wallets := make([]models.Wallet, 0, len(ids))
	for _, id := range ids {
		w, err := r.GetWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}

	return wallets, nil
}
