package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bargain/pkg/config"
	"bargain/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type snapshotDocument struct {
	CanonicalKey string                   `bson:"_id"`
	Snapshots    []model.SupplierSnapshot `bson:"snapshots"`
	UpdatedAt    time.Time                `bson:"updated_at"`
}

// SnapshotRepository serves re-quotes of supplier inventory by canonical
// product key. A missing key yields an empty slice.
type SnapshotRepository interface {
	Latest(ctx context.Context, canonicalKey string) ([]model.SupplierSnapshot, error)
	Put(ctx context.Context, canonicalKey string, snapshots []model.SupplierSnapshot, at time.Time) error
}

type mongoSnapshotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSnapshotRepository(cfg *config.Config) SnapshotRepository {
	return &mongoSnapshotRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(SnapshotsCollection),
	}
}

func (r *mongoSnapshotRepository) Latest(ctx context.Context, canonicalKey string) ([]model.SupplierSnapshot, error) {
	if canonicalKey == "" {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var doc snapshotDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": canonicalKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load supplier snapshots: %w", err)
	}
	return doc.Snapshots, nil
}

func (r *mongoSnapshotRepository) Put(ctx context.Context, canonicalKey string, snapshots []model.SupplierSnapshot, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": canonicalKey},
		snapshotDocument{CanonicalKey: canonicalKey, Snapshots: snapshots, UpdatedAt: at},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to store supplier snapshots: %w", err)
	}
	return nil
}
