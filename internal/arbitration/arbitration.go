// Package arbitration chooses which supplier fulfils an accepted price and
// holds that supplier's inventory unit exclusively until booking finishes.
package arbitration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bargain/internal/offerability"
	"bargain/pkg/logger"
	"bargain/pkg/model"

	"github.com/google/uuid"
)

var (
	ErrLockHeld     = errors.New("supplier inventory is locked")
	ErrLockConflict = errors.New("all attempted supplier candidates are locked")
	ErrNoCandidate  = errors.New("no supplier can fulfil the price")
	ErrLockNotFound = errors.New("supplier lock not found")
)

// LockStore persists supplier locks. Acquire must be an atomic
// test-and-set: it either inserts the lock, takes over an expired one, or
// returns ErrLockHeld.
type LockStore interface {
	Acquire(ctx context.Context, lock *model.SupplierLock, now time.Time) error
	Release(ctx context.Context, lockID string) (*model.SupplierLock, error)
}

// Eligible returns the fresh AVAILABLE candidates able to serve price
// without loss, in arbitration order.
func Eligible(res *offerability.Result, price float64) []offerability.Candidate {
	var out []offerability.Candidate
	for _, c := range res.Available() {
		if c.Floor <= price {
			out = append(out, c)
		}
	}
	return out
}

type Manager struct {
	store LockStore
	ttl   time.Duration
	log   *logger.Logger
}

func NewManager(store LockStore, ttl time.Duration, log *logger.Logger) *Manager {
	return &Manager{store: store, ttl: ttl, log: log}
}

// Acquire locks the first candidate. When it is held by another session
// the next candidate is tried exactly once; after that the conflict is
// surfaced.
func (m *Manager) Acquire(ctx context.Context, sessionID string, candidates []offerability.Candidate, now time.Time) (*model.SupplierLock, offerability.Candidate, error) {
	if len(candidates) == 0 {
		return nil, offerability.Candidate{}, ErrNoCandidate
	}

	attempts := candidates
	if len(attempts) > 2 {
		attempts = attempts[:2]
	}

	for i, c := range attempts {
		lock := &model.SupplierLock{
			Key:           model.LockKey(c.Snapshot.SupplierID, c.Snapshot.Unit()),
			LockID:        uuid.NewString(),
			SupplierID:    c.Snapshot.SupplierID,
			InventoryUnit: c.Snapshot.Unit(),
			SessionID:     sessionID,
			AcquiredAt:    now,
			ExpiresAt:     now.Add(m.ttl),
		}
		err := m.store.Acquire(ctx, lock, now)
		if err == nil {
			m.log.Info("Supplier lock acquired",
				"session_id", sessionID,
				"lock_id", lock.LockID,
				"supplier_id", lock.SupplierID,
				"inventory_unit", lock.InventoryUnit,
				"attempt", i+1,
			)
			return lock, c, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, offerability.Candidate{}, fmt.Errorf("acquire supplier lock: %w", err)
		}
		m.log.Warn("Supplier lock held, trying next candidate",
			"session_id", sessionID,
			"supplier_id", lock.SupplierID,
			"inventory_unit", lock.InventoryUnit,
		)
	}
	return nil, offerability.Candidate{}, ErrLockConflict
}

func (m *Manager) Release(ctx context.Context, lockID string) (*model.SupplierLock, error) {
	lock, err := m.store.Release(ctx, lockID)
	if err != nil {
		return nil, err
	}
	m.log.Info("Supplier lock released", "lock_id", lockID, "supplier_id", lock.SupplierID, "session_id", lock.SessionID)
	return lock, nil
}
