package statement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository/memory"
)

func TestReader(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2025, 4, d, 12, 0, 0, 0, time.UTC)
	}

	// Wallet history: +1000 (1st), -1500 (3rd), +200 (5th), +50 (7th)
	setup := func(t *testing.T) (*memory.Storage, uuid.UUID) {
		storage := memory.NewStorage()
		owner, err := storage.Owner().CreateOwner(t.Context(), models.Owner{ID: uuid.New(), Kind: models.OwnerKindUser})
		require.NoError(t, err)
		wallet, err := storage.Wallet().CreateWallet(t.Context(), models.Wallet{ID: uuid.New(), OwnerID: owner.ID, Currency: "PHP", Status: models.WalletStatusActive})
		require.NoError(t, err)

		running := decimal.Zero
		for _, step := range []struct {
			day    int
			signed string
		}{{1, "1000"}, {3, "-1500"}, {5, "200"}, {7, "50"}} {
			signed := decimal.RequireFromString(step.signed)
			running = running.Add(signed)
			entryType := models.EntryTypeCredit
			if signed.IsNegative() {
				entryType = models.EntryTypeDebit
			}

			_, err := storage.Ledger().CreateEntry(t.Context(), models.Entry{
				TransactionID: uuid.New(),
				WalletID:      wallet.ID,
				Type:          entryType,
				Amount:        signed.Abs(),
				BalanceAfter:  running,
				Sequence:      1,
				CreatedAt:     day(step.day),
			})
			require.NoError(t, err)
		}

		return storage, owner.ID
	}

	t.Run("GetStatement", func(t *testing.T) {
		t.Run("middle of history", func(t *testing.T) {
			storage, ownerID := setup(t)

			st, err := NewReader(storage).GetStatement(t.Context(), ownerID, day(2), day(6))

			require.NoError(t, err)
			require.Len(t, st.Entries, 2)
			require.Equal(t, "200.00", st.Entries[0].Amount.StringFixed(2), "newest first")
			require.Equal(t, "1000.00", st.OpeningBalance.StringFixed(2))
			require.Equal(t, "-300.00", st.ClosingBalance.StringFixed(2))
			require.Equal(t, "PHP", st.Currency)
		})

		t.Run("boundaries inclusive", func(t *testing.T) {
			storage, ownerID := setup(t)

			st, err := NewReader(storage).GetStatement(t.Context(), ownerID, day(3), day(5))

			require.NoError(t, err)
			require.Len(t, st.Entries, 2)
		})

		t.Run("before any entry", func(t *testing.T) {
			storage, ownerID := setup(t)

			st, err := NewReader(storage).GetStatement(t.Context(), ownerID, day(1).Add(-48*time.Hour), day(1).Add(-time.Hour))

			require.NoError(t, err)
			require.Empty(t, st.Entries)
			require.True(t, st.OpeningBalance.IsZero())
			require.True(t, st.ClosingBalance.IsZero())
		})

		t.Run("whole history opens at zero", func(t *testing.T) {
			storage, ownerID := setup(t)

			st, err := NewReader(storage).GetStatement(t.Context(), ownerID, day(1), day(30))

			require.NoError(t, err)
			require.Len(t, st.Entries, 4)
			require.True(t, st.OpeningBalance.IsZero())
			require.Equal(t, "-250.00", st.ClosingBalance.StringFixed(2))
		})

		t.Run("inverted period", func(t *testing.T) {
			storage, ownerID := setup(t)

			_, err := NewReader(storage).GetStatement(t.Context(), ownerID, day(6), day(2))

			require.ErrorIs(t, err, apperrors.ErrInvalidPeriod)
		})

		t.Run("unknown wallet", func(t *testing.T) {
			storage, _ := setup(t)

			_, err := NewReader(storage).GetStatement(t.Context(), uuid.New(), day(1), day(2))

			require.ErrorIs(t, err, apperrors.ErrWalletNotFound)
		})
	})

	t.Run("GetHistory", func(t *testing.T) {
		tests := []struct {
			name         string
			page         int
			pageSize     int
			wantPage     int
			wantPageSize int
			wantEntries  int
		}{
			{"defaults", 0, 0, 1, 20, 4},
			{"second page", 2, 3, 2, 3, 1},
			{"page past the end", 5, 3, 5, 3, 0},
			{"page size capped", 1, 1000, 1, 100, 4},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				storage, ownerID := setup(t)

				page, err := NewReader(storage).GetHistory(t.Context(), ownerID, tt.page, tt.pageSize)

				require.NoError(t, err)
				require.Equal(t, 4, page.Total)
				require.Equal(t, tt.wantPage, page.Page)
				require.Equal(t, tt.wantPageSize, page.PageSize)
				require.Len(t, page.Entries, tt.wantEntries)
			})
		}
	})
}
