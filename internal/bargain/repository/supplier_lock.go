package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bargain/internal/arbitration"
	"bargain/pkg/config"
	"bargain/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongoLockStore keys supplier locks by supplier_lock:<supplier>:<unit>.
// The unique _id makes acquisition a single insert; an expired holder is
// replaced with a conditional update on expires_at.
type mongoLockStore struct {
	cfg   *config.Config
	locks *mongo.Collection
}

func NewMongoLockStore(cfg *config.Config) arbitration.LockStore {
	return &mongoLockStore{
		cfg:   cfg,
		locks: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(LocksCollection),
	}
}

func (s *mongoLockStore) Acquire(ctx context.Context, lock *model.SupplierLock, now time.Time) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	_, err := s.locks.InsertOne(ctx, lock)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert supplier lock: %w", err)
	}

	res, err := s.locks.UpdateOne(ctx,
		bson.M{"_id": lock.Key, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{
			"lock_id":        lock.LockID,
			"supplier_id":    lock.SupplierID,
			"inventory_unit": lock.InventoryUnit,
			"session_id":     lock.SessionID,
			"acquired_at":    lock.AcquiredAt,
			"expires_at":     lock.ExpiresAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to take over supplier lock: %w", err)
	}
	if res.MatchedCount == 0 {
		return arbitration.ErrLockHeld
	}
	return nil
}

func (s *mongoLockStore) Release(ctx context.Context, lockID string) (*model.SupplierLock, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	var lock model.SupplierLock
	err := s.locks.FindOneAndDelete(ctx, bson.M{"lock_id": lockID}).Decode(&lock)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, arbitration.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to release supplier lock: %w", err)
	}
	return &lock, nil
}
