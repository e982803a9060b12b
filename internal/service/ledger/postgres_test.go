package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/events"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository/postgres"
	"github.com/nkiryanov/walletledger/internal/service/reconcile"
	"github.com/nkiryanov/walletledger/internal/service/wallet"
	"github.com/nkiryanov/walletledger/internal/testutil"
)

// Same flows as with memory storage but against real row locks.
// Every subtest commits, so owners are always fresh.
func TestService_Postgres(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)

	l := logger.NewNoOpLogger()
	storage := postgres.NewStorage(pg.Pool, postgres.WithLockTimeout(2*time.Second))
	wallets := wallet.NewService(storage, l)
	s := NewService(storage, events.NopPublisher{}, l)

	newWallet := func(t *testing.T, currency string) uuid.UUID {
		owner, err := wallets.CreateOwner(t.Context(), models.OwnerKindUser, "owner")
		require.NoError(t, err)
		_, err = wallets.CreateWallet(t.Context(), owner.ID, currency)
		require.NoError(t, err)
		return owner.ID
	}

	t.Run("credit debit transfer", func(t *testing.T) {
		a := newWallet(t, "USD")
		b := newWallet(t, "USD")

		_, err := s.Credit(t.Context(), CreditParams{OwnerID: a, Amount: dec("1000"), ActorID: actor})
		require.NoError(t, err)
		_, err = s.Debit(t.Context(), DebitParams{OwnerID: a, Amount: dec("1500"), ActorID: actor})
		require.NoError(t, err)
		view, err := s.Transfer(t.Context(), TransferParams{FromOwnerID: a, ToOwnerID: b, Amount: dec("200"), ActorID: actor})
		require.NoError(t, err)

		require.Equal(t, "Transfer; borrowing -700.00", view.Description)
		require.Equal(t, "-700.00", balanceOf(t, storage, a))
		require.Equal(t, "200.00", balanceOf(t, storage, b))

		stored, err := s.GetTransaction(t.Context(), view.ID)
		require.NoError(t, err)
		require.Len(t, stored.Entries, 2)
		require.True(t, view.CreatedAt.Equal(stored.CreatedAt), "clock must round trip through timestamptz")
	})

	t.Run("concurrent credits", func(t *testing.T) {
		owner := newWallet(t, "USD")
		const n = 20

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Credit(t.Context(), CreditParams{OwnerID: owner, Amount: dec("10"), ActorID: actor})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, "200.00", balanceOf(t, storage, owner))
		require.Equal(t, n, entriesOf(t, storage, owner))
	})

	t.Run("opposing transfers", func(t *testing.T) {
		a := newWallet(t, "EUR")
		b := newWallet(t, "EUR")
		const n = 10

		var wg sync.WaitGroup
		errs := make(chan error, 2*n)
		for range n {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := s.Transfer(t.Context(), TransferParams{FromOwnerID: a, ToOwnerID: b, Amount: dec("5"), ActorID: actor})
				errs <- err
			}()
			go func() {
				defer wg.Done()
				_, err := s.Transfer(t.Context(), TransferParams{FromOwnerID: b, ToOwnerID: a, Amount: dec("3"), ActorID: actor})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err, "ordered locking must not deadlock")
		}
		require.Equal(t, "-20.00", balanceOf(t, storage, a))
		require.Equal(t, "20.00", balanceOf(t, storage, b))
	})

	t.Run("concurrent idempotent credits", func(t *testing.T) {
		owner := newWallet(t, "USD")
		key := "pg-" + uuid.NewString()
		const n = 5

		var wg sync.WaitGroup
		ids := make(chan uuid.UUID, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				view, err := s.Credit(t.Context(), CreditParams{
					OwnerID: owner, Amount: dec("7"), ActorID: actor, Metadata: Metadata{IdempotencyKey: key},
				})
				if err == nil {
					ids <- view.ID
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[uuid.UUID]bool)
		for id := range ids {
			seen[id] = true
		}
		require.Len(t, seen, 1, "all successful calls return the same transaction")
		require.Equal(t, "7.00", balanceOf(t, storage, owner))
		require.Equal(t, 1, entriesOf(t, storage, owner))
	})

	t.Run("ledger reconciles", func(t *testing.T) {
		report, err := reconcile.NewChecker(storage, l).Check(t.Context())

		require.NoError(t, err)
		require.True(t, report.OK(), "violations: %v", report.Violations)
	})
}
