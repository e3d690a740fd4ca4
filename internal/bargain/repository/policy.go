package repository

import (
	"context"
	"errors"
	"fmt"

	"bargain/internal/policy"
	"bargain/pkg/config"
	mongotx "bargain/pkg/db/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPolicyStore struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoPolicyStore(cfg *config.Config) policy.Store {
	return &mongoPolicyStore{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(PoliciesCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo, cfg.WriteTimeout),
	}
}

func (s *mongoPolicyStore) ActiveDocument(ctx context.Context) (*policy.Document, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "published_at", Value: -1}})
	return s.findOne(ctx, bson.M{"active": true}, opts)
}

func (s *mongoPolicyStore) Document(ctx context.Context, version string) (*policy.Document, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	return s.findOne(ctx, bson.M{"_id": version})
}

// Publish stores doc and makes it the only active version. Re-publishing
// identical content reactivates it; different content under an existing
// version is refused.
func (s *mongoPolicyStore) Publish(ctx context.Context, doc *policy.Document) error {
	return s.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		existing, err := s.findOne(sessCtx, bson.M{"_id": doc.Version})
		switch {
		case err == nil && existing.Checksum != doc.Checksum:
			return policy.ErrVersionExists
		case err != nil && !errors.Is(err, policy.ErrNotFound):
			return err
		}

		if _, err := s.collection.UpdateMany(sessCtx,
			bson.M{"active": true},
			bson.M{"$set": bson.M{"active": false}},
		); err != nil {
			return fmt.Errorf("failed to deactivate policies: %w", err)
		}

		stored := *doc
		stored.Active = true
		if _, err := s.collection.ReplaceOne(sessCtx,
			bson.M{"_id": doc.Version},
			stored,
			options.Replace().SetUpsert(true),
		); err != nil {
			return fmt.Errorf("failed to publish policy: %w", err)
		}
		return nil
	})
}

func (s *mongoPolicyStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*policy.Document, error) {
	var doc policy.Document
	err := s.collection.FindOne(ctx, filter, opts...).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, policy.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return &doc, nil
}
