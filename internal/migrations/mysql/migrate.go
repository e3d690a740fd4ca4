package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"bargain/pkg/logger"
)

var queries = []string{
	`CREATE TABLE IF NOT EXISTS negotiation_logs (
        id CHAR(26) NOT NULL PRIMARY KEY,
        session_id CHAR(36) NOT NULL,
        round_index INT NOT NULL,
        product_type VARCHAR(16) NOT NULL,
        user_id VARCHAR(128) NOT NULL,
        user_offer DECIMAL(12,2) NULL,
        decision VARCHAR(16) NOT NULL,
        counter_price DECIMAL(12,2) NULL,
        accept_prob DECIMAL(5,4) NOT NULL,
        policy_version VARCHAR(64) NOT NULL,
        reason VARCHAR(64) NOT NULL,
        degraded BOOLEAN NOT NULL DEFAULT FALSE,
        log_time DATETIME(3) NOT NULL,
        INDEX idx_negotiation_logs_session (session_id, round_index)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// RunMigration creates the negotiation audit tables if they do not exist.
func RunMigration(ctx context.Context, db *sql.DB, log *logger.Logger) error {
	for i, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("mysql migration %d failed: %w", i, err)
		}
	}
	log.Info("MySQL migrations applied", "count", len(queries))
	return nil
}
