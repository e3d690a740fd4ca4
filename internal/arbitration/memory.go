package arbitration

import (
	"context"
	"sync"
	"time"

	"bargain/pkg/model"
)

// MemoryStore is a process-local LockStore.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]*model.SupplierLock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]*model.SupplierLock)}
}

func (s *MemoryStore) Acquire(_ context.Context, lock *model.SupplierLock, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.locks[lock.Key]; ok && now.Before(cur.ExpiresAt) {
		return ErrLockHeld
	}
	cp := *lock
	s.locks[lock.Key] = &cp
	return nil
}

func (s *MemoryStore) Release(_ context.Context, lockID string) (*model.SupplierLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, l := range s.locks {
		if l.LockID == lockID {
			delete(s.locks, key)
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrLockNotFound
}
