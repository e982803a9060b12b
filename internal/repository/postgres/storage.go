package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/walletledger/internal/repository"
)

const defaultLockTimeout = 5 * time.Second

// Anything that can run queries: *pgxpool.Pool, *pgx.Conn or pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Option func(*Storage)

// How long LockWallet waits for a wallet row lock before giving up
func WithLockTimeout(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

type Storage struct {
	db          DBTX
	lockTimeout time.Duration
}

func NewStorage(db DBTX, opts ...Option) *Storage {
	s := &Storage{db: db, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Owner() repository.OwnerRepo {
	return &OwnerRepo{DB: s.db}
}

func (s *Storage) Wallet() repository.WalletRepo {
	return &WalletRepo{DB: s.db, LockTimeout: s.lockTimeout}
}

func (s *Storage) Ledger() repository.LedgerRepo {
	return &LedgerRepo{DB: s.db}
}

// Begin transaction (or savepoint if storage already in transaction) and run fn in it
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}

		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(&Storage{db: tx, lockTimeout: s.lockTimeout})

	return err
}
