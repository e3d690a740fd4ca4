package main

import (
	"context"
	"fmt"
	"time"

	mongoMigration "bargain/internal/migrations/mongo"
	mysqlMigration "bargain/internal/migrations/mysql"
	"bargain/pkg/config"
)

const JobName = "bargain-migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	cfg := config.LoadJob(JobName)
	cfg.SetMongo()
	cfg.SetMySQL()
	cfg.Log.Info("Starting migration job")
	defer cfg.GracefulShutdown()

	migrateMongo(ctx, cfg)
	migrateMySQL(ctx, cfg)
	fmt.Println("Migration completed successfully.")
}

func migrateMongo(ctx context.Context, cfg *config.Config) {
	if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
		cfg.Log.Fatal("Mongo migration failed", "error", err)
	}
}

func migrateMySQL(ctx context.Context, cfg *config.Config) {
	if cfg.Client.MySQL == nil {
		cfg.Log.Info("MYSQL_DSN not set, skipping negotiation log migration")
		return
	}
	if err := mysqlMigration.RunMigration(ctx, cfg.Client.MySQL, cfg.Log); err != nil {
		cfg.Log.Fatal("MySQL migration failed", "error", err)
	}
}
