// Package memory keeps the ledger in process memory.
// It follows the postgres storage semantics: read committed visibility,
// exclusive wallet locks held till the end of transaction and
// unique owner wallet and idempotency key.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
)

const defaultLockTimeout = 5 * time.Second

// Committed data
type state struct {
	mu sync.RWMutex

	owners        map[uuid.UUID]models.Owner
	wallets       map[uuid.UUID]models.Wallet
	walletByOwner map[uuid.UUID]uuid.UUID
	transactions  map[uuid.UUID]models.Transaction
	txByKey       map[idempotencyKey]uuid.UUID
	entries       map[uuid.UUID][]models.Entry // by wallet
	txEntries     map[uuid.UUID][]models.Entry // by transaction
	manual        map[uuid.UUID]models.ManualTransferRequest
	nextEntryID   int64
}

// Writes not yet visible to anyone except the transaction that made them
type changes struct {
	owners       []models.Owner
	wallets      []models.Wallet
	statuses     map[uuid.UUID]models.Wallet
	transactions []models.Transaction
	entries      []models.Entry
	manual       []models.ManualTransferRequest
}

type txState struct {
	changes changes
	held    map[uuid.UUID]struct{}
}

type Option func(*Storage)

func WithLockTimeout(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Idempotency keys are unique per actor
type idempotencyKey struct {
	actorID uuid.UUID
	key     string
}

func keyOf(t models.Transaction) idempotencyKey {
	return idempotencyKey{actorID: t.CreatedBy, key: *t.IdempotencyKey}
}

type Storage struct {
	st          *state
	locks       *lockTable
	lockTimeout time.Duration

	// nil when storage is not in transaction
	tx *txState
}

func NewStorage(opts ...Option) *Storage {
	s := &Storage{
		st: &state{
			owners:        make(map[uuid.UUID]models.Owner),
			wallets:       make(map[uuid.UUID]models.Wallet),
			walletByOwner: make(map[uuid.UUID]uuid.UUID),
			transactions:  make(map[uuid.UUID]models.Transaction),
			txByKey:       make(map[idempotencyKey]uuid.UUID),
			entries:       make(map[uuid.UUID][]models.Entry),
			txEntries:     make(map[uuid.UUID][]models.Entry),
			manual:        make(map[uuid.UUID]models.ManualTransferRequest),
		},
		locks:       newLockTable(),
		lockTimeout: defaultLockTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Storage) Owner() repository.OwnerRepo {
	return &OwnerRepo{s: s}
}

func (s *Storage) Wallet() repository.WalletRepo {
	return &WalletRepo{s: s}
}

func (s *Storage) Ledger() repository.LedgerRepo {
	return &LedgerRepo{s: s}
}

// Run fn in transaction. Nested calls join the outer transaction
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}

	txStorage := &Storage{
		st:          s.st,
		locks:       s.locks,
		lockTimeout: s.lockTimeout,
		tx: &txState{
			changes: changes{statuses: make(map[uuid.UUID]models.Wallet)},
			held:    make(map[uuid.UUID]struct{}),
		},
	}

	defer func() {
		for walletID := range txStorage.tx.held {
			s.locks.release(walletID)
		}
	}()

	if err = fn(txStorage); err != nil {
		return err
	}

	return s.st.apply(txStorage.tx.changes)
}

// Make the change visible: to the transaction only or to everyone when not in transaction
func (s *Storage) write(fn func(c *changes)) error {
	if s.tx != nil {
		fn(&s.tx.changes)
		return nil
	}

	c := changes{statuses: make(map[uuid.UUID]models.Wallet)}
	fn(&c)
	return s.st.apply(c)
}

func (st *state) allocEntryID() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.nextEntryID++
	return st.nextEntryID
}

// Validate all changes first and only then apply, so changes are applied all or nothing
func (st *state) apply(c changes) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	newOwners := make(map[uuid.UUID]struct{}, len(c.owners))
	for _, o := range c.owners {
		if _, ok := st.owners[o.ID]; ok {
			return apperrors.ErrOwnerAlreadyExists
		}
		newOwners[o.ID] = struct{}{}
	}

	for _, w := range c.wallets {
		_, known := st.owners[w.OwnerID]
		_, created := newOwners[w.OwnerID]
		if !known && !created {
			return apperrors.ErrOwnerNotFound
		}
		if _, ok := st.walletByOwner[w.OwnerID]; ok {
			return apperrors.ErrWalletAlreadyExists
		}
	}

	for _, t := range c.transactions {
		if t.IdempotencyKey == nil {
			continue
		}
		if _, ok := st.txByKey[keyOf(t)]; ok {
			return apperrors.ErrDuplicateTransaction
		}
	}

	for _, o := range c.owners {
		st.owners[o.ID] = o
	}
	for _, w := range c.wallets {
		st.wallets[w.ID] = w
		st.walletByOwner[w.OwnerID] = w.ID
	}
	for id, w := range c.statuses {
		st.wallets[id] = w
	}
	for _, t := range c.transactions {
		st.transactions[t.ID] = t
		if t.IdempotencyKey != nil {
			st.txByKey[keyOf(t)] = t.ID
		}
	}
	for _, e := range c.entries {
		st.entries[e.WalletID] = append(st.entries[e.WalletID], e)
		st.txEntries[e.TransactionID] = append(st.txEntries[e.TransactionID], e)
	}
	for _, m := range c.manual {
		st.manual[m.TransactionID] = m
	}

	return nil
}

// Committed and own pending entries of the wallet, newest first
func (s *Storage) walletEntries(walletID uuid.UUID, from, to *time.Time) []models.Entry {
	s.st.mu.RLock()
	all := append([]models.Entry(nil), s.st.entries[walletID]...)
	s.st.mu.RUnlock()

	if s.tx != nil {
		for _, e := range s.tx.changes.entries {
			if e.WalletID == walletID {
				all = append(all, e)
			}
		}
	}

	filtered := all[:0]
	for _, e := range all {
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && e.CreatedAt.After(*to) {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].ID > filtered[j].ID
	})

	return filtered
}
