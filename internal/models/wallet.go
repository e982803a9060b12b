package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WalletStatusActive    = "ACTIVE"
	WalletStatusSuspended = "SUSPENDED"
)

// Wallet holds no balance: the ledger entries are the only source of truth
type Wallet struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Currency  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

// Balance is a derived, point in time view of a wallet
type Balance struct {
	WalletID uuid.UUID
	OwnerID  uuid.UUID
	Currency string
	Status   string
	Amount   decimal.Decimal
	AsOf     time.Time
}
