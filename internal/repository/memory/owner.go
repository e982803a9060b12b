package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

type OwnerRepo struct {
	s *Storage
}

func (r *OwnerRepo) CreateOwner(ctx context.Context, o models.Owner) (models.Owner, error) {
	if _, err := r.GetOwner(ctx, o.ID); err == nil {
		return models.Owner{}, apperrors.ErrOwnerAlreadyExists
	}

	err := r.s.write(func(c *changes) {
		c.owners = append(c.owners, o)
	})
	if err != nil {
		return models.Owner{}, err
	}

	return o, nil
}

func (r *OwnerRepo) GetOwner(ctx context.Context, ownerID uuid.UUID) (models.Owner, error) {
	if r.s.tx != nil {
		for _, o := range r.s.tx.changes.owners {
			if o.ID == ownerID {
				return o, nil
			}
		}
	}

	r.s.st.mu.RLock()
	defer r.s.st.mu.RUnlock()

	o, ok := r.s.st.owners[ownerID]
	if !ok {
		return models.Owner{}, apperrors.ErrOwnerNotFound
	}
	return o, nil
}
