package arbitration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bargain/internal/offerability"
	"bargain/pkg/logger"
	"bargain/pkg/model"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func candidate(supplier string, floor float64) offerability.Candidate {
	return offerability.Candidate{
		Snapshot: model.SupplierSnapshot{
			SupplierID:     supplier,
			InventoryUnit:  "unit-1",
			Net:            floor - 10,
			Currency:       "USD",
			InventoryState: model.InventoryAvailable,
			SnapshotAt:     now,
		},
		Floor: floor,
	}
}

func hold(t *testing.T, store LockStore, supplier, session string, expires time.Time) {
	t.Helper()
	err := store.Acquire(context.Background(), &model.SupplierLock{
		Key:        model.LockKey(supplier, "unit-1"),
		LockID:     "held-" + supplier,
		SupplierID: supplier,
		SessionID:  session,
		ExpiresAt:  expires,
	}, now)
	if err != nil {
		t.Fatalf("seed lock: %v", err)
	}
}

func TestEligible(t *testing.T) {
	stale := candidate("stale", 90)
	stale.Stale = true
	soldOut := candidate("sold", 90)
	soldOut.Snapshot.InventoryState = model.InventorySoldOut
	res := &offerability.Result{Candidates: []offerability.Candidate{
		candidate("a", 100), candidate("b", 130), stale, soldOut, candidate("c", 120),
	}}

	got := Eligible(res, 120)
	if len(got) != 2 || got[0].Snapshot.SupplierID != "a" || got[1].Snapshot.SupplierID != "c" {
		t.Errorf("Eligible() = %+v", got)
	}
	if len(Eligible(res, 50)) != 0 {
		t.Error("candidates with floors above price were eligible")
	}
}

func TestManager_RetriesExactlyOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("second candidate wins", func(t *testing.T) {
		store := NewMemoryStore()
		hold(t, store, "a", "other-session", now.Add(time.Hour))
		m := NewManager(store, 15*time.Minute, logger.Discard())

		lock, c, err := m.Acquire(ctx, "s1", []offerability.Candidate{candidate("a", 100), candidate("b", 110)}, now)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if c.Snapshot.SupplierID != "b" || lock.SupplierID != "b" || lock.SessionID != "s1" {
			t.Errorf("locked %+v via %s", lock, c.Snapshot.SupplierID)
		}
		if !lock.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
			t.Errorf("ExpiresAt = %v", lock.ExpiresAt)
		}
	})

	t.Run("third candidate is never tried", func(t *testing.T) {
		store := NewMemoryStore()
		hold(t, store, "a", "x", now.Add(time.Hour))
		hold(t, store, "b", "y", now.Add(time.Hour))
		m := NewManager(store, time.Minute, logger.Discard())

		_, _, err := m.Acquire(ctx, "s1", []offerability.Candidate{candidate("a", 100), candidate("b", 100), candidate("c", 100)}, now)
		if !errors.Is(err, ErrLockConflict) {
			t.Errorf("Acquire() error = %v, want ErrLockConflict", err)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		m := NewManager(NewMemoryStore(), time.Minute, logger.Discard())
		if _, _, err := m.Acquire(ctx, "s1", nil, now); !errors.Is(err, ErrNoCandidate) {
			t.Errorf("Acquire() error = %v, want ErrNoCandidate", err)
		}
	})
}

func TestManager_TakesOverExpiredLock(t *testing.T) {
	store := NewMemoryStore()
	hold(t, store, "a", "old-session", now.Add(-time.Second))
	m := NewManager(store, time.Minute, logger.Discard())

	lock, _, err := m.Acquire(context.Background(), "s2", []offerability.Candidate{candidate("a", 100)}, now)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lock.SessionID != "s2" {
		t.Errorf("lock owner = %s", lock.SessionID)
	}
}

func TestManager_Release(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, time.Minute, logger.Discard())

	lock, _, err := m.Acquire(ctx, "s1", []offerability.Candidate{candidate("a", 100)}, now)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := m.Release(ctx, lock.LockID); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := m.Release(ctx, lock.LockID); !errors.Is(err, ErrLockNotFound) {
		t.Errorf("second Release() error = %v, want ErrLockNotFound", err)
	}
	if _, _, err := m.Acquire(ctx, "s2", []offerability.Candidate{candidate("a", 100)}, now); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestManager_ExclusiveUnderConcurrency(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, time.Minute, logger.Discard())
	candidates := []offerability.Candidate{candidate("a", 100), candidate("b", 100)}

	const sessions = 50
	var wins atomic.Int32
	owners := sync.Map{}
	var wg sync.WaitGroup
	wg.Add(sessions)
	for i := 0; i < sessions; i++ {
		go func(i int) {
			defer wg.Done()
			lock, _, err := m.Acquire(context.Background(), fmt.Sprintf("s%d", i), candidates, now)
			if err != nil {
				if !errors.Is(err, ErrLockConflict) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			wins.Add(1)
			if prev, loaded := owners.LoadOrStore(lock.Key, lock.SessionID); loaded {
				t.Errorf("%s locked by both %v and %s", lock.Key, prev, lock.SessionID)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 2 {
		t.Errorf("wins = %d, want exactly one per inventory unit", wins.Load())
	}
}
