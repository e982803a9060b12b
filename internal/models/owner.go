package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OwnerKindUser     = "USER"
	OwnerKindContract = "CONTRACT"
)

// Owner is the party a wallet belongs to: a platform user or a logical account such as a contract escrow
type Owner struct {
	ID        uuid.UUID
	Kind      string
	Name      string
	CreatedAt time.Time
}
