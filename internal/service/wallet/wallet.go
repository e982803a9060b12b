package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/service/balance"
)

type Service struct {
	storage  repository.Storage
	validate *validator.Validate
	logger   logger.Logger
	now      func() time.Time
}

func NewService(storage repository.Storage, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage:  storage,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   l,
		now:      time.Now,
	}
}

// Register wallet owner: a platform user or a logical account like contract escrow
func (s *Service) CreateOwner(ctx context.Context, kind string, name string) (models.Owner, error) {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if kind != models.OwnerKindUser && kind != models.OwnerKindContract {
		return models.Owner{}, apperrors.ErrOwnerKindInvalid
	}

	return s.storage.Owner().CreateOwner(ctx, models.Owner{
		ID:        uuid.New(),
		Kind:      kind,
		Name:      strings.TrimSpace(name),
		CreatedAt: s.clock(),
	})
}

func (s *Service) CreateWallet(ctx context.Context, ownerID uuid.UUID, currency string) (models.Wallet, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if err := s.validate.Var(currency, "required,iso4217"); err != nil {
		return models.Wallet{}, apperrors.ErrCurrencyInvalid
	}

	if _, err := s.storage.Owner().GetOwner(ctx, ownerID); err != nil {
		return models.Wallet{}, err
	}

	now := s.clock()
	wallet, err := s.storage.Wallet().CreateWallet(ctx, models.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Currency:  currency,
		Status:    models.WalletStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return wallet, err
	}

	s.logger.Info("Wallet created", "wallet_id", wallet.ID.String(), "owner_id", ownerID.String(), "currency", currency)
	return wallet, nil
}

func (s *Service) GetWallet(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error) {
	return s.storage.Wallet().GetWalletByOwner(ctx, ownerID)
}

// Suspend is a no-op for already suspended wallet
func (s *Service) Suspend(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error) {
	return s.setStatus(ctx, ownerID, models.WalletStatusSuspended)
}

// Activate is a no-op for already active wallet
func (s *Service) Activate(ctx context.Context, ownerID uuid.UUID) (models.Wallet, error) {
	return s.setStatus(ctx, ownerID, models.WalletStatusActive)
}

func (s *Service) GetBalance(ctx context.Context, ownerID uuid.UUID) (models.Balance, error) {
	wallet, err := s.storage.Wallet().GetWalletByOwner(ctx, ownerID)
	if err != nil {
		return models.Balance{}, err
	}

	asOf := s.clock()
	amount, err := balance.NewResolver(s.storage.Ledger()).Resolve(ctx, wallet.ID)
	if err != nil {
		return models.Balance{}, err
	}

	return models.Balance{
		WalletID: wallet.ID,
		OwnerID:  wallet.OwnerID,
		Currency: wallet.Currency,
		Status:   wallet.Status,
		Amount:   amount,
		AsOf:     asOf,
	}, nil
}

// Status changes take the wallet lock, so they never interleave with a ledger operation on the same wallet
func (s *Service) setStatus(ctx context.Context, ownerID uuid.UUID, status string) (models.Wallet, error) {
	var wallet models.Wallet
	changed := false

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		found, err := tx.Wallet().GetWalletByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		wallet, err = tx.Wallet().LockWallet(ctx, found.ID)
		if err != nil {
			return err
		}
		if wallet.Status == status {
			return nil
		}

		wallet, err = tx.Wallet().SetStatus(ctx, wallet.ID, status, s.clock())
		changed = err == nil
		return err
	})
	if err != nil {
		return models.Wallet{}, err
	}

	if changed {
		s.logger.Info("Wallet status changed", "wallet_id", wallet.ID.String(), "status", status)
	}
	return wallet, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
