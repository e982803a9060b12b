package events

import (
	"context"
	"time"

	"github.com/nkiryanov/walletledger/internal/models"
)

// Publisher announces committed transactions to the outside world.
// Called after commit, so a failed publish never undoes a transaction.
type Publisher interface {
	Publish(ctx context.Context, view models.TransactionView) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.TransactionView) error {
	return nil
}

// Wire format of a committed transaction
type TransactionCompleted struct {
	TransactionID      string     `json:"transaction_id"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	Amount             string     `json:"amount"`
	Description        string     `json:"description,omitempty"`
	Reference          string     `json:"reference,omitempty"`
	CreatedBy          string     `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	ActualTransferDate *time.Time `json:"actual_transfer_date,omitempty"`
	Entries            []Entry    `json:"entries"`
}

type Entry struct {
	WalletID     string `json:"wallet_id"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	BalanceAfter string `json:"balance_after"`
	Sequence     int    `json:"sequence"`
}

func NewTransactionCompleted(view models.TransactionView) TransactionCompleted {
	event := TransactionCompleted{
		TransactionID:      view.ID.String(),
		Type:               view.Type,
		Status:             view.Status,
		Amount:             view.Amount.StringFixed(2),
		Description:        view.Description,
		Reference:          view.Reference,
		CreatedBy:          view.CreatedBy.String(),
		CreatedAt:          view.CreatedAt,
		ActualTransferDate: view.ActualTransferDate,
		Entries:            make([]Entry, 0, len(view.Entries)),
	}

	for _, e := range view.Entries {
		event.Entries = append(event.Entries, Entry{
			WalletID:     e.WalletID.String(),
			Type:         e.Type,
			Amount:       e.Amount.StringFixed(2),
			BalanceAfter: e.BalanceAfter.StringFixed(2),
			Sequence:     e.Sequence,
		})
	}

	return event
}
