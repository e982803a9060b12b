package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/logger"
)

func handleStatement(statementService statementService, l logger.Logger) http.Handler {
	type response struct {
		WalletID       uuid.UUID       `json:"wallet_id"`
		OwnerID        uuid.UUID       `json:"owner_id"`
		Currency       string          `json:"currency"`
		From           time.Time       `json:"from"`
		To             time.Time       `json:"to"`
		OpeningBalance string          `json:"opening_balance"`
		ClosingBalance string          `json:"closing_balance"`
		Entries        []entryResponse `json:"entries"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := pathUUID(w, r, "ownerID")
		if !ok {
			return
		}

		from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
		if err != nil {
			render.ServiceError(w, "Query parameter 'from' must be RFC3339 time", http.StatusBadRequest)
			return
		}
		to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
		if err != nil {
			render.ServiceError(w, "Query parameter 'to' must be RFC3339 time", http.StatusBadRequest)
			return
		}

		st, err := statementService.GetStatement(r.Context(), ownerID, from, to)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, response{
			WalletID:       st.WalletID,
			OwnerID:        st.OwnerID,
			Currency:       st.Currency,
			From:           st.From,
			To:             st.To,
			OpeningBalance: st.OpeningBalance.StringFixed(2),
			ClosingBalance: st.ClosingBalance.StringFixed(2),
			Entries:        newEntryResponses(st.Entries),
		})
	})
}

func handleHistory(statementService statementService, l logger.Logger) http.Handler {
	type response struct {
		WalletID uuid.UUID       `json:"wallet_id"`
		Entries  []entryResponse `json:"entries"`
		Total    int             `json:"total"`
		Page     int             `json:"page"`
		PageSize int             `json:"page_size"`
	}

	// Missing parameter is zero, the reader applies defaults
	queryInt := func(r *http.Request, name string) (int, error) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return 0, nil
		}
		return strconv.Atoi(raw)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := pathUUID(w, r, "ownerID")
		if !ok {
			return
		}

		page, err := queryInt(r, "page")
		if err != nil {
			render.ServiceError(w, "Query parameter 'page' must be an integer", http.StatusBadRequest)
			return
		}
		pageSize, err := queryInt(r, "page_size")
		if err != nil {
			render.ServiceError(w, "Query parameter 'page_size' must be an integer", http.StatusBadRequest)
			return
		}

		h, err := statementService.GetHistory(r.Context(), ownerID, page, pageSize)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, response{
			WalletID: h.WalletID,
			Entries:  newEntryResponses(h.Entries),
			Total:    h.Total,
			Page:     h.Page,
			PageSize: h.PageSize,
		})
	})
}
