package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
)

type LedgerRepo struct {
	DB DBTX
}

const transactionColumns = `id, type, status, description, amount, created_by, created_at, completed_at,
	actual_transfer_date, reference, remarks, idempotency_key`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (` + transactionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

func (r *LedgerRepo) CreateTransaction(ctx context.Context, t models.Transaction) error {
	_, err := r.DB.Exec(ctx, createTransaction,
		t.ID, t.Type, t.Status, t.Description, t.Amount, t.CreatedBy, t.CreatedAt, t.CompletedAt,
		t.ActualTransferDate, t.Reference, t.Remarks, t.IdempotencyKey,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return apperrors.ErrDuplicateTransaction
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const entryColumns = `id, transaction_id, wallet_id, entry_type, amount, balance_after, entry_sequence, created_at`

const createEntry = `-- name: CreateEntry
INSERT INTO transaction_entries (transaction_id, wallet_id, entry_type, amount, balance_after, entry_sequence, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + entryColumns

func (r *LedgerRepo) CreateEntry(ctx context.Context, e models.Entry) (models.Entry, error) {
	rows, _ := r.DB.Query(ctx, createEntry,
		e.TransactionID, e.WalletID, e.Type, e.Amount, e.BalanceAfter, e.Sequence, e.CreatedAt,
	)

	entry, err := pgx.CollectOneRow(rows, rowToEntry)
	if err != nil {
		return entry, fmt.Errorf("db error: %w", err)
	}

	return entry, nil
}

const createManualTransfer = `-- name: CreateManualTransfer
INSERT INTO manual_transfer_requests (id, transaction_id, payment_method, reference_number, entered_by, proof_attachment_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (r *LedgerRepo) CreateManualTransfer(ctx context.Context, m models.ManualTransferRequest) error {
	_, err := r.DB.Exec(ctx, createManualTransfer,
		m.ID, m.TransactionID, m.PaymentMethod, m.ReferenceNumber, m.EnteredBy, m.ProofAttachmentRef, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getTransaction = `-- name: GetTransaction
SELECT ` + transactionColumns + ` FROM transactions
WHERE id = $1
`

func (r *LedgerRepo) GetTransaction(ctx context.Context, txID uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransaction, txID)
	return collectTransaction(rows)
}

const getTransactionByKey = `-- name: GetTransactionByIdempotencyKey
SELECT ` + transactionColumns + ` FROM transactions
WHERE created_by = $1 AND idempotency_key = $2
`

func (r *LedgerRepo) GetTransactionByIdempotencyKey(ctx context.Context, actorID uuid.UUID, key string) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransactionByKey, actorID, key)
	return collectTransaction(rows)
}

const listTransactionEntries = `-- name: ListTransactionEntries
SELECT ` + entryColumns + ` FROM transaction_entries
WHERE transaction_id = $1
ORDER BY entry_sequence
`

func (r *LedgerRepo) ListTransactionEntries(ctx context.Context, txID uuid.UUID) ([]models.Entry, error) {
	rows, _ := r.DB.Query(ctx, listTransactionEntries, txID)
	entries, err := pgx.CollectRows(rows, rowToEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}

const latestEntry = `-- name: LatestEntry
SELECT ` + entryColumns + ` FROM transaction_entries
WHERE wallet_id = $1 AND ($2::timestamptz IS NULL OR created_at <= $2)
ORDER BY created_at DESC, id DESC
LIMIT 1
`

// Most recent wallet entry created not later than upTo (any if upTo is nil)
func (r *LedgerRepo) LatestEntry(ctx context.Context, walletID uuid.UUID, upTo *time.Time) (models.Entry, error) {
	rows, _ := r.DB.Query(ctx, latestEntry, walletID, upTo)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, pgx.ErrNoRows):
		return entry, apperrors.ErrEntryNotFound
	default:
		return entry, fmt.Errorf("db error: %w", err)
	}
}

const sumEntries = `-- name: SumEntries
SELECT COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE -amount END), 0)
FROM transaction_entries
WHERE wallet_id = $1 AND ($2::timestamptz IS NULL OR created_at <= $2)
`

func (r *LedgerRepo) SumEntries(ctx context.Context, walletID uuid.UUID, upTo *time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, sumEntries, walletID, upTo).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepo) ListEntries(ctx context.Context, opts repository.ListEntriesOpts) ([]models.Entry, error) {
	where, args := entriesFilter(opts)
	query := `SELECT ` + entryColumns + ` FROM transaction_entries WHERE ` + where + ` ORDER BY created_at DESC, id DESC`

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, _ := r.DB.Query(ctx, query, args...)
	entries, err := pgx.CollectRows(rows, rowToEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}

func (r *LedgerRepo) CountEntries(ctx context.Context, opts repository.ListEntriesOpts) (int, error) {
	where, args := entriesFilter(opts)

	var count int
	err := r.DB.QueryRow(ctx, `SELECT count(*) FROM transaction_entries WHERE `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func entriesFilter(opts repository.ListEntriesOpts) (string, []any) {
	conds := []string{"wallet_id = $1"}
	args := []any{opts.WalletID}

	if opts.From != nil {
		args = append(args, *opts.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if opts.To != nil {
		args = append(args, *opts.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

func collectTransaction(rows pgx.Rows) (models.Transaction, error) {
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.Type, &t.Status, &t.Description, &t.Amount, &t.CreatedBy, &t.CreatedAt, &t.CompletedAt,
		&t.ActualTransferDate, &t.Reference, &t.Remarks, &t.IdempotencyKey,
	)
	return t, err
}

func rowToEntry(row pgx.CollectableRow) (models.Entry, error) {
	var e models.Entry
	err := row.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.Type, &e.Amount, &e.BalanceAfter, &e.Sequence, &e.CreatedAt)
	return e, err
}
