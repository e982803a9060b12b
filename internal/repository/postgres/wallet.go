package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

type WalletRepo struct {
	DB          DBTX
	LockTimeout time.Duration
}

const walletColumns = `id, owner_id, currency, status, created_at, updated_at`

const createWallet = `-- name: CreateWallet
INSERT INTO wallets (id, owner_id, currency, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + walletColumns

func (r *WalletRepo) CreateWallet(ctx context.Context, w models.Wallet) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, createWallet, w.ID, w.OwnerID, w.Currency, w.Status, w.CreatedAt, w.UpdatedAt)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
			return wallet, apperrors.ErrWalletAlreadyExists
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
			return wallet, apperrors.ErrOwnerNotFound
		default:
			return wallet, fmt.Errorf("db error: %w", err)
		}
	}

	return wallet, nil
}

const getWalletByOwner = `-- name: GetWalletByOwner
SELECT ` + walletColumns + ` FROM wallets
WHERE owner_id = $1
`

func (r *WalletRepo) GetWalletByOwner(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getWalletByOwner, ownerID)
	return collectWallet(rows)
}

const getWallet = `-- name: GetWallet
SELECT ` + walletColumns + ` FROM wallets
WHERE id = $1
`

func (r *WalletRepo) GetWallet(ctx context.Context, walletID uuid.UUID) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getWallet, walletID)
	return collectWallet(rows)
}

const setLockTimeout = `SELECT set_config('lock_timeout', $1, true)`

const lockWallet = `-- name: LockWallet
SELECT ` + walletColumns + ` FROM wallets
WHERE id = $1
FOR UPDATE
`

// Lock the wallet row till the end of current transaction
// Lock wait is bounded by lock_timeout local to the transaction
func (r *WalletRepo) LockWallet(ctx context.Context, walletID uuid.UUID) (models.Wallet, error) {
	timeout := fmt.Sprintf("%dms", r.LockTimeout.Milliseconds())
	if _, err := r.DB.Exec(ctx, setLockTimeout, timeout); err != nil {
		return models.Wallet{}, fmt.Errorf("db error: %w", err)
	}

	rows, _ := r.DB.Query(ctx, lockWallet, walletID)
	wallet, err := collectWallet(rows)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.LockNotAvailable {
		return wallet, fmt.Errorf("wallet %s: %w", walletID, apperrors.ErrLockTimeout)
	}

	return wallet, err
}

const setWalletStatus = `-- name: SetWalletStatus
UPDATE wallets
SET status = $2, updated_at = $3
WHERE id = $1
RETURNING ` + walletColumns

func (r *WalletRepo) SetStatus(ctx context.Context, walletID uuid.UUID, status string, updatedAt time.Time) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, setWalletStatus, walletID, status, updatedAt)
	return collectWallet(rows)
}

const listWallets = `-- name: ListWallets
SELECT ` + walletColumns + ` FROM wallets
ORDER BY id
`

func (r *WalletRepo) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, listWallets)
	wallets, err := pgx.CollectRows(rows, rowToWallet)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return wallets, nil
}

func collectWallet(rows pgx.Rows) (models.Wallet, error) {
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}
