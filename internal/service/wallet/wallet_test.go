package wallet

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository/memory"
)

func TestService(t *testing.T) {
	setup := func(t *testing.T) (*Service, models.Owner) {
		s := NewService(memory.NewStorage(), nil)
		owner, err := s.CreateOwner(t.Context(), "user", "Juan Dela Cruz")
		require.NoError(t, err)
		return s, owner
	}

	t.Run("CreateOwner", func(t *testing.T) {
		t.Run("kind normalized", func(t *testing.T) {
			_, owner := setup(t)

			require.Equal(t, models.OwnerKindUser, owner.Kind)
			require.Equal(t, "Juan Dela Cruz", owner.Name)
		})

		t.Run("unknown kind", func(t *testing.T) {
			s, _ := setup(t)

			_, err := s.CreateOwner(t.Context(), "bank", "x")

			require.ErrorIs(t, err, apperrors.ErrOwnerKindInvalid)
		})
	})

	t.Run("CreateWallet", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			s, owner := setup(t)

			wallet, err := s.CreateWallet(t.Context(), owner.ID, " php ")

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, wallet.ID)
			require.Equal(t, "PHP", wallet.Currency)
			require.Equal(t, models.WalletStatusActive, wallet.Status)
		})

		t.Run("second wallet for owner", func(t *testing.T) {
			s, owner := setup(t)
			_, err := s.CreateWallet(t.Context(), owner.ID, "PHP")
			require.NoError(t, err)

			_, err = s.CreateWallet(t.Context(), owner.ID, "USD")

			require.ErrorIs(t, err, apperrors.ErrWalletAlreadyExists)
		})

		t.Run("unknown owner", func(t *testing.T) {
			s, _ := setup(t)

			_, err := s.CreateWallet(t.Context(), uuid.New(), "PHP")

			require.ErrorIs(t, err, apperrors.ErrOwnerNotFound)
		})

		t.Run("invalid currency", func(t *testing.T) {
			s, owner := setup(t)

			for _, currency := range []string{"", "XX", "ABC", "pesos"} {
				_, err := s.CreateWallet(t.Context(), owner.ID, currency)

				require.ErrorIs(t, err, apperrors.ErrCurrencyInvalid, "currency %q", currency)
			}
		})
	})

	t.Run("GetWallet", func(t *testing.T) {
		s, owner := setup(t)

		_, err := s.GetWallet(t.Context(), owner.ID)
		require.ErrorIs(t, err, apperrors.ErrWalletNotFound)

		created, err := s.CreateWallet(t.Context(), owner.ID, "PHP")
		require.NoError(t, err)

		got, err := s.GetWallet(t.Context(), owner.ID)
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)
	})

	t.Run("Suspend and Activate are idempotent", func(t *testing.T) {
		s, owner := setup(t)
		_, err := s.CreateWallet(t.Context(), owner.ID, "PHP")
		require.NoError(t, err)

		for range 2 {
			wallet, err := s.Suspend(t.Context(), owner.ID)
			require.NoError(t, err)
			require.Equal(t, models.WalletStatusSuspended, wallet.Status)
		}

		for range 2 {
			wallet, err := s.Activate(t.Context(), owner.ID)
			require.NoError(t, err)
			require.Equal(t, models.WalletStatusActive, wallet.Status)
		}
	})

	t.Run("Suspend unknown wallet", func(t *testing.T) {
		s, _ := setup(t)

		_, err := s.Suspend(t.Context(), uuid.New())

		require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
	})

	t.Run("GetBalance of new wallet", func(t *testing.T) {
		s, owner := setup(t)
		wallet, err := s.CreateWallet(t.Context(), owner.ID, "PHP")
		require.NoError(t, err)

		b, err := s.GetBalance(t.Context(), owner.ID)

		require.NoError(t, err)
		require.Equal(t, wallet.ID, b.WalletID)
		require.Equal(t, "PHP", b.Currency)
		require.Equal(t, models.WalletStatusActive, b.Status)
		require.True(t, b.Amount.IsZero())
		require.False(t, b.AsOf.IsZero())
	})
}
