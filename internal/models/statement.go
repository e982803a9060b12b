package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Statement struct {
	WalletID       uuid.UUID
	OwnerID        uuid.UUID
	Currency       string
	From           time.Time
	To             time.Time
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal

	// Newest first
	Entries []Entry
}

type HistoryPage struct {
	WalletID uuid.UUID
	Entries  []Entry
	Total    int
	Page     int
	PageSize int
}
