package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

type OwnerRepo struct {
	DB DBTX
}

const createOwner = `-- name: CreateOwner
INSERT INTO owners (id, kind, name, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id, kind, name, created_at
`

func (r *OwnerRepo) CreateOwner(ctx context.Context, o models.Owner) (models.Owner, error) {
	rows, _ := r.DB.Query(ctx, createOwner, o.ID, o.Kind, o.Name, o.CreatedAt)
	owner, err := pgx.CollectOneRow(rows, rowToOwner)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return owner, apperrors.ErrOwnerAlreadyExists
		}

		return owner, fmt.Errorf("db error: %w", err)
	}

	return owner, nil
}

const getOwner = `-- name: GetOwner
SELECT id, kind, name, created_at FROM owners
WHERE id = $1
`

func (r *OwnerRepo) GetOwner(ctx context.Context, ownerID uuid.UUID) (models.Owner, error) {
	rows, _ := r.DB.Query(ctx, getOwner, ownerID)
	owner, err := pgx.CollectOneRow(rows, rowToOwner)

	switch {
	case err == nil:
		return owner, nil
	case errors.Is(err, pgx.ErrNoRows):
		return owner, apperrors.ErrOwnerNotFound
	default:
		return owner, fmt.Errorf("db error: %w", err)
	}
}

func rowToOwner(row pgx.CollectableRow) (models.Owner, error) {
	var o models.Owner
	err := row.Scan(&o.ID, &o.Kind, &o.Name, &o.CreatedAt)
	return o, err
}
