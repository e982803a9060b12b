package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
)

type walletResponse struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newWalletResponse(w models.Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		OwnerID:   w.OwnerID,
		Currency:  w.Currency,
		Status:    w.Status,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func handleCreateOwner(walletService walletService, l logger.Logger) http.Handler {
	type request struct {
		Kind string `json:"kind" validate:"required,oneof=USER CONTRACT"`
		Name string `json:"name" validate:"required,max=255"`
	}

	type response struct {
		ID        uuid.UUID `json:"id"`
		Kind      string    `json:"kind"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		owner, err := walletService.CreateOwner(r.Context(), req.Kind, req.Name)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, response{owner.ID, owner.Kind, owner.Name, owner.CreatedAt}, http.StatusCreated)
	})
}

func handleCreateWallet(walletService walletService, l logger.Logger) http.Handler {
	type request struct {
		OwnerID  string `json:"owner_id" validate:"required,uuid"`
		Currency string `json:"currency" validate:"required,max=3"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// validated above
		ownerID := uuid.MustParse(req.OwnerID)

		wallet, err := walletService.CreateWallet(r.Context(), ownerID, req.Currency)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newWalletResponse(wallet), http.StatusCreated)
	})
}

func handleGetWallet(walletService walletService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := pathUUID(w, r, "ownerID")
		if !ok {
			return
		}

		wallet, err := walletService.GetWallet(r.Context(), ownerID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newWalletResponse(wallet))
	})
}

// Suspend and activate share the handler: both are idempotent and return the wallet
func handleSetWalletStatus(set func(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error), l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := pathUUID(w, r, "ownerID")
		if !ok {
			return
		}

		wallet, err := set(r.Context(), ownerID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newWalletResponse(wallet))
	})
}

func handleGetBalance(walletService walletService, l logger.Logger) http.Handler {
	type response struct {
		WalletID uuid.UUID `json:"wallet_id"`
		OwnerID  uuid.UUID `json:"owner_id"`
		Currency string    `json:"currency"`
		Status   string    `json:"status"`
		Balance  string    `json:"balance"`
		AsOf     time.Time `json:"as_of"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := pathUUID(w, r, "ownerID")
		if !ok {
			return
		}

		b, err := walletService.GetBalance(r.Context(), ownerID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, response{
			WalletID: b.WalletID,
			OwnerID:  b.OwnerID,
			Currency: b.Currency,
			Status:   b.Status,
			Balance:  b.Amount.StringFixed(2),
			AsOf:     b.AsOf,
		})
	})
}
