package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/handlers/middleware"
	"github.com/nkiryanov/walletledger/internal/handlers/render"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/service/ledger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// NewRouter builds the ledger HTTP API.
// idempotency is the response replay middleware, nil disables it (the ledger still deduplicates by key).
func NewRouter(
	authService authService,
	walletService walletService,
	ledgerService ledgerService,
	statementService statementService,
	idempotency func(http.Handler) http.Handler,
	logger logger.Logger,
) http.Handler {
	if idempotency == nil {
		idempotency = func(h http.Handler) http.Handler { return h }
	}

	authMiddleware := middleware.AuthMiddleware(authService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}
	withAuthOnce := func(h http.Handler) http.Handler {
		return chain(h, authMiddleware, idempotency)
	}

	api := http.NewServeMux()

	api.Handle("POST /owners", withAuth(handleCreateOwner(walletService, logger)))

	api.Handle("POST /wallets", withAuth(handleCreateWallet(walletService, logger)))
	api.Handle("GET /wallets/{ownerID}", withAuth(handleGetWallet(walletService, logger)))
	api.Handle("POST /wallets/{ownerID}/suspend", withAuth(handleSetWalletStatus(walletService.Suspend, logger)))
	api.Handle("POST /wallets/{ownerID}/activate", withAuth(handleSetWalletStatus(walletService.Activate, logger)))
	api.Handle("GET /wallets/{ownerID}/balance", withAuth(handleGetBalance(walletService, logger)))

	api.Handle("POST /wallets/{ownerID}/credit", withAuthOnce(handleCredit(ledgerService, logger)))
	api.Handle("POST /wallets/{ownerID}/debit", withAuthOnce(handleDebit(ledgerService, logger)))
	api.Handle("POST /transfers", withAuthOnce(handleTransfer(ledgerService, logger)))
	api.Handle("GET /transactions/{id}", withAuth(handleGetTransaction(ledgerService, logger)))

	api.Handle("GET /wallets/{ownerID}/statement", withAuth(handleStatement(statementService, logger)))
	api.Handle("GET /wallets/{ownerID}/history", withAuth(handleHistory(statementService, logger)))

	root := http.NewServeMux()
	root.Handle("GET /health", handleHealth())
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, map[string]string{"status": "ok"})
	})
}

type authService interface {
	// Return acting user id from the bearer token
	// Any error is treated as unauthenticated
	Authenticate(ctx context.Context, r *http.Request) (uuid.UUID, error)
}

type walletService interface {
	CreateOwner(ctx context.Context, kind string, name string) (models.Owner, error)
	CreateWallet(ctx context.Context, ownerID uuid.UUID, currency string) (models.Wallet, error)
	GetWallet(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error)
	Suspend(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error)
	Activate(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error)
	GetBalance(ctx context.Context, ownerID uuid.UUID) (models.Balance, error)
}

type ledgerService interface {
	Credit(ctx context.Context, p ledger.CreditParams) (models.TransactionView, error)
	Debit(ctx context.Context, p ledger.DebitParams) (models.TransactionView, error)
	Transfer(ctx context.Context, p ledger.TransferParams) (models.TransactionView, error)
	GetTransaction(ctx context.Context, txID uuid.UUID) (models.TransactionView, error)
}

type statementService interface {
	GetStatement(ctx context.Context, ownerID uuid.UUID, from time.Time, to time.Time) (models.Statement, error)
	GetHistory(ctx context.Context, ownerID uuid.UUID, page int, pageSize int) (models.HistoryPage, error)
}
