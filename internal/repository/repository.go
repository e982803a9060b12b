package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/models"
)

// Storage gives access to every repository and the atomic unit of work
type Storage interface {
	Owner() OwnerRepo
	Wallet() WalletRepo
	Ledger() LedgerRepo

	// Run fn in atomic unit: everything written through the passed storage is committed if fn returns nil
	// and rolled back otherwise. Wallet locks are held until the unit ends.
	InTx(ctx context.Context, fn func(Storage) error) error
}

// Directory of wallet owners
type OwnerRepo interface {
	// Has to return apperrors.ErrOwnerAlreadyExists if owner with the ID exists
	CreateOwner(ctx context.Context, owner models.Owner) (models.Owner, error)

	// Has to return apperrors.ErrOwnerNotFound if owner not exists
	GetOwner(ctx context.Context, ownerID uuid.UUID) (models.Owner, error)
}

type WalletRepo interface {
	// Create wallet
	// If owner already has a wallet must return apperrors.ErrWalletAlreadyExists
	CreateWallet(ctx context.Context, wallet models.Wallet) (models.Wallet, error)

	// Get wallet without locking
	// If wallet not found must return apperrors.ErrWalletNotFound
	GetWalletByOwner(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error)
	GetWallet(ctx context.Context, walletID uuid.UUID) (models.Wallet, error)

	// Acquire exclusive lock on the wallet and return its fresh state.
	// The lock is released when the surrounding unit of work ends.
	// If the lock is not acquired in bounded time must return apperrors.ErrLockTimeout
	LockWallet(ctx context.Context, walletID uuid.UUID) (models.Wallet, error)

	SetStatus(ctx context.Context, walletID uuid.UUID, status string, updatedAt time.Time) (models.Wallet, error)

	// All wallets ordered by id
	ListWallets(ctx context.Context) ([]models.Wallet, error)
}

// Append only store of transactions and their entries.
// There are no update or delete methods on purpose.
type LedgerRepo interface {
	// If the actor already has a transaction with the same idempotency key must return apperrors.ErrDuplicateTransaction
	CreateTransaction(ctx context.Context, tx models.Transaction) error

	// Save entry and return it with assigned ID
	CreateEntry(ctx context.Context, entry models.Entry) (models.Entry, error)

	CreateManualTransfer(ctx context.Context, m models.ManualTransferRequest) error

	// Has to return apperrors.ErrTransactionNotFound if not exists
	GetTransaction(ctx context.Context, txID uuid.UUID) (models.Transaction, error)
	// Keys are scoped by the actor who created the transaction
	GetTransactionByIdempotencyKey(ctx context.Context, actorID uuid.UUID, key string) (models.Transaction, error)

	// Entries of the transaction ordered by sequence
	ListTransactionEntries(ctx context.Context, txID uuid.UUID) ([]models.Entry, error)

	// Most recent entry of the wallet created at or before upTo (no bound if nil)
	// Has to return apperrors.ErrEntryNotFound if wallet has no such entries
	LatestEntry(ctx context.Context, walletID uuid.UUID, upTo *time.Time) (models.Entry, error)

	// Signed sum of wallet entries created at or before upTo (no bound if nil); zero if there are none
	SumEntries(ctx context.Context, walletID uuid.UUID, upTo *time.Time) (decimal.Decimal, error)

	// Entries newest first
	ListEntries(ctx context.Context, opts ListEntriesOpts) ([]models.Entry, error)
	CountEntries(ctx context.Context, opts ListEntriesOpts) (int, error)
}

type ListEntriesOpts struct {
	WalletID uuid.UUID

	// Inclusive bounds on created_at, ignored if nil
	From *time.Time
	To   *time.Time

	// No limit if zero
	Limit  int
	Offset int
}
