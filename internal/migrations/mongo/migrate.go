package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bargain/internal/bargain/repository"
	"bargain/internal/migrations/mongo/validators"
	"bargain/pkg/logger"
)

var (
	SessionsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "user.id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	RoundsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "index", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	// Expired locks are taken over in place; the TTL index only reclaims
	// ones nobody contends for.
	LocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "lock_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	PoliciesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "published_at", Value: -1}}},
	}

	EventsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "occurred_at", Value: 1}}},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	collections := map[string]collectionDef{
		repository.SessionsCollection: {
			Indexes:   SessionsIndexes,
			Validator: validators.SessionValidator,
		},
		repository.RoundsCollection: {
			Indexes:   RoundsIndexes,
			Validator: validators.RoundValidator,
		},
		repository.LocksCollection: {
			Indexes:   LocksIndexes,
			Validator: validators.SupplierLockValidator,
		},
		repository.PoliciesCollection: {
			Indexes:   PoliciesIndexes,
			Validator: validators.PolicyValidator,
		},
		repository.EventsCollection: {
			Indexes: EventsIndexes,
		},
		repository.SnapshotsCollection: {},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All Mongo migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
