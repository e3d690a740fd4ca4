package repository

import (
	"context"
	"fmt"

	"bargain/pkg/config"
	"bargain/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventRepository keeps client micro-events next to the session so replay
// can show them.
type EventRepository interface {
	Insert(ctx context.Context, event *model.Event) error
	FindBySession(ctx context.Context, sessionID string, limit int) ([]*model.Event, error)
}

type mongoEventRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	ids        *idGenerator
}

func NewMongoEventRepository(cfg *config.Config) EventRepository {
	return &mongoEventRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(EventsCollection),
		ids:        newIDGenerator(),
	}
}

func (r *mongoEventRepository) Insert(ctx context.Context, event *model.Event) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = r.ids.New(event.OccurredAt)
	}
	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *mongoEventRepository) FindBySession(ctx context.Context, sessionID string, limit int) ([]*model.Event, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*model.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}
