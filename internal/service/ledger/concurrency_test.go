package ledger

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/repository/memory"
)

// Storage that remembers the order wallets get locked in
type lockRecorder struct {
	repository.Storage

	mu     *sync.Mutex
	locked *[]uuid.UUID
}

func newLockRecorder(storage repository.Storage) lockRecorder {
	return lockRecorder{Storage: storage, mu: &sync.Mutex{}, locked: &[]uuid.UUID{}}
}

func (r lockRecorder) Wallet() repository.WalletRepo {
	return recordingWalletRepo{WalletRepo: r.Storage.Wallet(), rec: r}
}

func (r lockRecorder) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	return r.Storage.InTx(ctx, func(tx repository.Storage) error {
		return fn(lockRecorder{Storage: tx, mu: r.mu, locked: r.locked})
	})
}

func (r lockRecorder) Locked() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), (*r.locked)...)
}

type recordingWalletRepo struct {
	repository.WalletRepo
	rec lockRecorder
}

func (w recordingWalletRepo) LockWallet(ctx context.Context, walletID uuid.UUID) (models.Wallet, error) {
	w.rec.mu.Lock()
	*w.rec.locked = append(*w.rec.locked, walletID)
	w.rec.mu.Unlock()

	return w.WalletRepo.LockWallet(ctx, walletID)
}

// Ledger that stores a wrong balance snapshot while reporting the right one
type corruptingStorage struct {
	repository.Storage
}

func (s corruptingStorage) Ledger() repository.LedgerRepo {
	return corruptingLedger{LedgerRepo: s.Storage.Ledger()}
}

func (s corruptingStorage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	return s.Storage.InTx(ctx, func(tx repository.Storage) error {
		return fn(corruptingStorage{Storage: tx})
	})
}

type corruptingLedger struct {
	repository.LedgerRepo
}

func (l corruptingLedger) CreateEntry(ctx context.Context, e models.Entry) (models.Entry, error) {
	stored := e
	stored.BalanceAfter = e.BalanceAfter.Add(decimal.NewFromInt(1))

	created, err := l.LedgerRepo.CreateEntry(ctx, stored)
	created.BalanceAfter = e.BalanceAfter
	return created, err
}

func TestService_ConcurrentCredits(t *testing.T) {
	storage := memory.NewStorage()
	ownerID := newOwner(t, storage, "PHP")
	s := NewService(storage, nil, nil)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Credit(context.Background(), CreditParams{OwnerID: ownerID, Amount: dec("12.34"), ActorID: actor})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, decimal.NewFromInt(n).Mul(dec("12.34")).StringFixed(2), balanceOf(t, storage, ownerID))
	require.Equal(t, n, entriesOf(t, storage, ownerID))

	wallet, err := storage.Wallet().GetWalletByOwner(t.Context(), ownerID)
	require.NoError(t, err)
	entries, err := storage.Ledger().ListEntries(t.Context(), repository.ListEntriesOpts{WalletID: wallet.ID})
	require.NoError(t, err)

	// Oldest first: every snapshot continues the previous one
	prev := decimal.Zero
	for i := len(entries) - 1; i >= 0; i-- {
		require.True(t, entries[i].BalanceAfter.Equal(prev.Add(entries[i].SignedAmount())), "chain broken at entry %d", entries[i].ID)
		prev = entries[i].BalanceAfter
	}
}

func TestService_OpposingTransfers(t *testing.T) {
	storage := memory.NewStorage(memory.WithLockTimeout(5 * time.Second))
	a := newOwner(t, storage, "PHP")
	b := newOwner(t, storage, "PHP")
	s := NewService(storage, nil, nil)

	const n = 30
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Transfer(context.Background(), TransferParams{FromOwnerID: a, ToOwnerID: b, Amount: dec("3"), ActorID: actor})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.Transfer(context.Background(), TransferParams{FromOwnerID: b, ToOwnerID: a, Amount: dec("1"), ActorID: actor})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err, "opposing transfers must not deadlock")
	}

	require.Equal(t, "-60.00", balanceOf(t, storage, a))
	require.Equal(t, "60.00", balanceOf(t, storage, b))
}

func TestService_LockOrder(t *testing.T) {
	storage := memory.NewStorage()
	a := newOwner(t, storage, "PHP")
	b := newOwner(t, storage, "PHP")
	recorder := newLockRecorder(storage)
	s := NewService(recorder, nil, nil)

	_, err := s.Transfer(t.Context(), TransferParams{FromOwnerID: a, ToOwnerID: b, Amount: dec("1"), ActorID: actor})
	require.NoError(t, err)
	_, err = s.Transfer(t.Context(), TransferParams{FromOwnerID: b, ToOwnerID: a, Amount: dec("1"), ActorID: actor})
	require.NoError(t, err)

	locked := recorder.Locked()
	require.Len(t, locked, 4)
	for i := 0; i < len(locked); i += 2 {
		require.Negative(t, bytes.Compare(locked[i][:], locked[i+1][:]), "wallets have to be locked in ascending id order")
	}
	require.Equal(t, locked[0:2], locked[2:4], "direction does not change the order")
}

func TestService_LockTimeout(t *testing.T) {
	storage := memory.NewStorage(memory.WithLockTimeout(50 * time.Millisecond))
	ownerID := newOwner(t, storage, "PHP")
	wallet, err := storage.Wallet().GetWalletByOwner(t.Context(), ownerID)
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = storage.InTx(context.Background(), func(tx repository.Storage) error {
			_, err := tx.Wallet().LockWallet(context.Background(), wallet.ID)
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	_, err = NewService(storage, nil, nil).Credit(t.Context(), CreditParams{OwnerID: ownerID, Amount: dec("10"), ActorID: actor})
	close(release)
	<-done

	require.ErrorIs(t, err, apperrors.ErrLockTimeout)
	require.Zero(t, entriesOf(t, storage, ownerID), "timed out operation writes nothing")
}

func TestService_InvariantViolationAborts(t *testing.T) {
	storage := memory.NewStorage()
	ownerID := newOwner(t, storage, "PHP")
	publisher := &recordingPublisher{}
	s := NewService(corruptingStorage{Storage: storage}, publisher, nil)

	_, err := s.Credit(t.Context(), CreditParams{OwnerID: ownerID, Amount: dec("10"), ActorID: actor})

	require.ErrorIs(t, err, apperrors.ErrInvariantViolation)
	var invariantErr *apperrors.InvariantError
	require.ErrorAs(t, err, &invariantErr)
	require.Equal(t, "balance", invariantErr.Invariant)
	require.Zero(t, entriesOf(t, storage, ownerID), "aborted unit leaves nothing behind")
	require.Empty(t, publisher.views)
}

func TestCheckConservation(t *testing.T) {
	walletA, walletB := uuid.New(), uuid.New()
	tx := models.Transaction{Amount: dec("10")}

	tests := []struct {
		name    string
		entries []models.Entry
		ok      bool
	}{
		{
			name:    "single entry",
			entries: []models.Entry{{WalletID: walletA, Type: models.EntryTypeCredit, Amount: dec("10")}},
			ok:      true,
		},
		{
			name: "balanced pair",
			entries: []models.Entry{
				{WalletID: walletA, Type: models.EntryTypeDebit, Amount: dec("10")},
				{WalletID: walletB, Type: models.EntryTypeCredit, Amount: dec("10")},
			},
			ok: true,
		},
		{
			name: "same wallet",
			entries: []models.Entry{
				{WalletID: walletA, Type: models.EntryTypeDebit, Amount: dec("10")},
				{WalletID: walletA, Type: models.EntryTypeCredit, Amount: dec("10")},
			},
		},
		{
			name: "amounts differ",
			entries: []models.Entry{
				{WalletID: walletA, Type: models.EntryTypeDebit, Amount: dec("10")},
				{WalletID: walletB, Type: models.EntryTypeCredit, Amount: dec("9.99")},
			},
		},
		{
			name: "two credits",
			entries: []models.Entry{
				{WalletID: walletA, Type: models.EntryTypeCredit, Amount: dec("10")},
				{WalletID: walletB, Type: models.EntryTypeCredit, Amount: dec("10")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkConservation(tx, tt.entries)

			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, apperrors.ErrInvariantViolation)
			}
		})
	}
}

func TestCheckChain(t *testing.T) {
	entry := models.Entry{Type: models.EntryTypeDebit, Amount: dec("200"), BalanceAfter: dec("-700")}

	require.NoError(t, checkChain(dec("-500"), entry))
	require.ErrorIs(t, checkChain(dec("-400"), entry), apperrors.ErrInvariantViolation)
}
