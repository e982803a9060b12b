package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/handlers/actorctx"
	"github.com/nkiryanov/walletledger/internal/handlers/middleware"
	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
)

// Body fields shared by credit, debit and transfer
type moneyMovement struct {
	Amount             decimal.Decimal `json:"amount" validate:"decimal_positive"`
	PaymentMethod      string          `json:"payment_method" validate:"max=64"`
	ReferenceNumber    string          `json:"reference_number" validate:"max=255"`
	ProofAttachmentRef *string         `json:"proof_attachment_ref" validate:"omitempty,max=1024"`
	Description        string          `json:"description" validate:"max=500"`
	Reference          string          `json:"reference" validate:"max=255"`
	Remarks            string          `json:"remarks" validate:"max=2000"`
	ActualTransferDate *time.Time      `json:"actual_transfer_date"`
}

func (m moneyMovement) metadata(r *http.Request) ledger.Metadata {
	return ledger.Metadata{
		PaymentMethod:      m.PaymentMethod,
		ReferenceNumber:    m.ReferenceNumber,
		ProofAttachmentRef: m.ProofAttachmentRef,
		Description:        m.Description,
		Reference:          m.Reference,
		Remarks:            m.Remarks,
		ActualTransferDate: m.ActualTransferDate,
		IdempotencyKey:     r.Header.Get(middleware.IdempotencyKeyHeader),
	}
}

type entryResponse struct {
	ID            int64     `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	WalletID      uuid.UUID `json:"wallet_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balance_after"`
	Sequence      int       `json:"sequence"`
	CreatedAt     time.Time `json:"created_at"`
}

type transactionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Type               string          `json:"type"`
	Status             string          `json:"status"`
	Description        string          `json:"description"`
	Amount             string          `json:"amount"`
	CreatedBy          uuid.UUID       `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	ActualTransferDate *time.Time      `json:"actual_transfer_date,omitempty"`
	Reference          string          `json:"reference,omitempty"`
	Remarks            string          `json:"remarks,omitempty"`
	IdempotencyKey     *string         `json:"idempotency_key,omitempty"`
	Entries            []entryResponse `json:"entries"`
}

func newEntryResponses(entries []models.Entry) []entryResponse {
	res := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, entryResponse{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			WalletID:      e.WalletID,
			Type:          e.Type,
			Amount:        e.Amount.StringFixed(2),
			BalanceAfter:  e.BalanceAfter.StringFixed(2),
			Sequence:      e.Sequence,
			CreatedAt:     e.CreatedAt,
		})
	}
	return res
}

func newTransactionResponse(v models.TransactionView) transactionResponse {
	return transactionResponse{
		ID:                 v.ID,
		Type:               v.Type,
		Status:             v.Status,
		Description:        v.Description,
		Amount:             v.Amount.StringFixed(2),
		CreatedBy:          v.CreatedBy,
		CreatedAt:          v.CreatedAt,
		CompletedAt:        v.CompletedAt,
		ActualTransferDate: v.ActualTransferDate,
		Reference:          v.Reference,
		Remarks:            v.Remarks,
		IdempotencyKey:     v.IdempotencyKey,
		Entries:            newEntryResponses(v.Entries),
	}
}

// A replayed transaction was not created by this request
func renderTransaction(w http.ResponseWriter, v models.TransactionView) {
	code := http.StatusCreated
	if v.Replayed {
		code = http.StatusOK
	}
	render.JSONWithStatus(w, newTransactionResponse(v), code)
}

func handleCredit(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ownerID, ok := pathUUID(w, r, "ownerID")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[moneyMovement](w, r)
		if err != nil {
			return
		}

		view, err := ledgerService.Credit(r.Context(), ledger.CreditParams{
			OwnerID:  ownerID,
			Amount:   req.Amount,
			ActorID:  actorID,
			Metadata: req.metadata(r),
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		renderTransaction(w, view)
	})
}

func handleDebit(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ownerID, ok := pathUUID(w, r, "ownerID")
		if !ok {
			return
		}

		req, err := render.BindAndValidate[moneyMovement](w, r)
		if err != nil {
			return
		}

		view, err := ledgerService.Debit(r.Context(), ledger.DebitParams{
			OwnerID:  ownerID,
			Amount:   req.Amount,
			ActorID:  actorID,
			Metadata: req.metadata(r),
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		renderTransaction(w, view)
	})
}

func handleTransfer(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		FromOwnerID string `json:"from_owner_id" validate:"required,uuid"`
		ToOwnerID   string `json:"to_owner_id" validate:"required,uuid"`
		Type        string `json:"type" validate:"omitempty,oneof=TRANSFER DISBURSEMENT REPAYMENT"`
		moneyMovement
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		view, err := ledgerService.Transfer(r.Context(), ledger.TransferParams{
			FromOwnerID: uuid.MustParse(req.FromOwnerID),
			ToOwnerID:   uuid.MustParse(req.ToOwnerID),
			Amount:      req.Amount,
			ActorID:     actorID,
			Type:        req.Type,
			Metadata:    req.metadata(r),
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		renderTransaction(w, view)
	})
}

func handleGetTransaction(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		view, err := ledgerService.GetTransaction(r.Context(), txID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newTransactionResponse(view))
	})
}
