package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bargainerrors "bargain/internal/bargain/errors"
	"bargain/pkg/config"
	mongotx "bargain/pkg/db/mongo"
	"bargain/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionUpdate is applied together with a new round. The update only
// lands if the stored session is still at ExpectRound, which serializes
// writers across processes.
type SessionUpdate struct {
	ExpectRound    int
	Round          int
	Status         model.SessionStatus
	LastDecision   model.Decision
	LastPrice      float64
	LastCapsule    string
	CostFloor      float64
	Candidates     []model.SupplierSnapshot
	Degraded       bool
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// AcceptUpdate records the supplier lock on an accepted session.
type AcceptUpdate struct {
	ExpectRound    int
	SupplierLockID string
	SupplierID     string
	LastPrice      float64
	LastCapsule    string
	LastActivityAt time.Time
}

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session, first *model.Round) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	AppendRound(ctx context.Context, sessionID string, update SessionUpdate, round *model.Round) error
	MarkAccepted(ctx context.Context, sessionID string, update AcceptUpdate) error
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Session, error)
	MarkExpired(ctx context.Context, sessionID string, now time.Time) (bool, error)
	Rounds(ctx context.Context, sessionID string) ([]*model.Round, error)
	Ping(ctx context.Context) error
}

type mongoSessionRepository struct {
	cfg       *config.Config
	client    *mongo.Client
	sessions  *mongo.Collection
	rounds    *mongo.Collection
	txManager mongotx.TransactionManager
	ids       *idGenerator
}

func NewMongoSessionRepository(cfg *config.Config) SessionRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSessionRepository{
		cfg:       cfg,
		client:    cfg.Client.Mongo,
		sessions:  db.Collection(SessionsCollection),
		rounds:    db.Collection(RoundsCollection),
		txManager: mongotx.NewTransactionManager(cfg.Client.Mongo, cfg.WriteTimeout),
		ids:       newIDGenerator(),
	}
}

func (r *mongoSessionRepository) Create(ctx context.Context, session *model.Session, first *model.Round) error {
	if first.ID == "" {
		first.ID = r.ids.New(first.CreatedAt)
	}
	return r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := r.sessions.InsertOne(sessCtx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if _, err := r.rounds.InsertOne(sessCtx, first); err != nil {
			return fmt.Errorf("failed to record opening round: %w", err)
		}
		return nil
	})
}

func (r *mongoSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var session model.Session
	err := r.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bargainerrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &session, nil
}

func (r *mongoSessionRepository) AppendRound(ctx context.Context, sessionID string, update SessionUpdate, round *model.Round) error {
	if round.ID == "" {
		round.ID = r.ids.New(round.CreatedAt)
	}

	filter := bson.M{
		"_id":    sessionID,
		"round":  update.ExpectRound,
		"status": model.SessionActive,
	}
	set := bson.M{
		"round":            update.Round,
		"status":           update.Status,
		"last_decision":    update.LastDecision,
		"last_price":       update.LastPrice,
		"last_capsule":     update.LastCapsule,
		"cost_floor":       update.CostFloor,
		"degraded":         update.Degraded,
		"last_activity_at": update.LastActivityAt,
		"expires_at":       update.ExpiresAt,
	}
	if update.Candidates != nil {
		set["candidates"] = update.Candidates
	}

	return r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		res, err := r.sessions.UpdateOne(sessCtx, filter, bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if res.MatchedCount == 0 {
			return bargainerrors.ErrRoundConflict
		}
		if _, err := r.rounds.InsertOne(sessCtx, round); err != nil {
			return fmt.Errorf("failed to append round: %w", err)
		}
		return nil
	})
}

func (r *mongoSessionRepository) MarkAccepted(ctx context.Context, sessionID string, update AcceptUpdate) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":              sessionID,
		"round":            update.ExpectRound,
		"status":           bson.M{"$in": []model.SessionStatus{model.SessionActive, model.SessionAccepted}},
		"supplier_lock_id": bson.M{"$exists": false},
	}
	set := bson.M{
		"status":           model.SessionAccepted,
		"last_decision":    model.DecisionAccept,
		"supplier_lock_id": update.SupplierLockID,
		"supplier_id":      update.SupplierID,
		"last_price":       update.LastPrice,
		"last_capsule":     update.LastCapsule,
		"last_activity_at": update.LastActivityAt,
	}
	res, err := r.sessions.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to mark session accepted: %w", err)
	}
	if res.MatchedCount == 0 {
		return bargainerrors.ErrRoundConflict
	}
	return nil
}

func (r *mongoSessionRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Session, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"candidates": 0, "last_capsule": 0})
	cursor, err := r.sessions.Find(ctx, bson.M{
		"status":     model.SessionActive,
		"expires_at": bson.M{"$lte": now},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode expired sessions: %w", err)
	}
	return sessions, nil
}

func (r *mongoSessionRepository) MarkExpired(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID, "status": model.SessionActive, "expires_at": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"status": model.SessionExpired}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire session: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *mongoSessionRepository) Rounds(ctx context.Context, sessionID string) ([]*model.Round, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "index", Value: 1}})
	cursor, err := r.rounds.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rounds: %w", err)
	}
	defer cursor.Close(ctx)

	rounds := []*model.Round{}
	if err := cursor.All(ctx, &rounds); err != nil {
		return nil, fmt.Errorf("failed to decode rounds: %w", err)
	}
	return rounds, nil
}

func (r *mongoSessionRepository) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()
	return r.client.Ping(ctx, nil)
}
