package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
)

// Exclusive per wallet locks. A lock is a channel with one slot: holding the lock means the slot is taken
type lockTable struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[uuid.UUID]chan struct{})}
}

func (t *lockTable) slot(walletID uuid.UUID) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.slots[walletID]
	if !ok {
		ch = make(chan struct{}, 1)
		t.slots[walletID] = ch
	}
	return ch
}

func (t *lockTable) acquire(ctx context.Context, walletID uuid.UUID, timeout time.Duration) error {
	ch := t.slot(walletID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("wallet %s: %w", walletID, apperrors.ErrLockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *lockTable) release(walletID uuid.UUID) {
	<-t.slot(walletID)
}
