package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NegotiationLog is one row of the relational audit mirror. The cost floor
// is deliberately absent.
type NegotiationLog struct {
	RoundID       string
	SessionID     string
	RoundIndex    int
	ProductType   string
	UserID        string
	UserOffer     *float64
	Decision      string
	CounterPrice  *float64
	AcceptProb    float64
	PolicyVersion string
	Reason        string
	Degraded      bool
	LogTime       time.Time
}

type NegotiationLogRepository interface {
	Insert(ctx context.Context, entry NegotiationLog) error
}

type mysqlNegotiationLogRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewNegotiationLogRepository returns a no-op mirror when db is nil.
func NewNegotiationLogRepository(db *sql.DB, timeout time.Duration) NegotiationLogRepository {
	if db == nil {
		return noopNegotiationLog{}
	}
	return &mysqlNegotiationLogRepository{db: db, timeout: timeout}
}

func (r *mysqlNegotiationLogRepository) Insert(ctx context.Context, entry NegotiationLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `INSERT INTO negotiation_logs
        (id, session_id, round_index, product_type, user_id, user_offer, decision, counter_price, accept_prob, policy_version, reason, degraded, log_time)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		entry.RoundID,
		entry.SessionID,
		entry.RoundIndex,
		entry.ProductType,
		entry.UserID,
		nullFloat(entry.UserOffer),
		entry.Decision,
		nullFloat(entry.CounterPrice),
		entry.AcceptProb,
		entry.PolicyVersion,
		entry.Reason,
		entry.Degraded,
		entry.LogTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert negotiation log: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

type noopNegotiationLog struct{}

func (noopNegotiationLog) Insert(context.Context, NegotiationLog) error {
	return nil
}
