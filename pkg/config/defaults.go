package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "bargain"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisDB          = 0
	DefaultRedisDialTimeout = 2 * time.Second
	DefaultRedisOpTimeout   = 50 * time.Millisecond

	DefaultPort           = "8080"
	DefaultServiceVersion = "1.0.0"
	DefaultLogLevel       = "info"

	DefaultDecisionBudget   = 300 * time.Millisecond
	DefaultCapsuleTTL       = 5 * time.Minute
	DefaultCapsuleClockSkew = 5 * time.Second
	DefaultLockTTL          = 15 * time.Minute
	DefaultSweepInterval    = 30 * time.Second

	DefaultRateLimitRequests = 120
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 2 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 256 * 1024 // 256KB

	DefaultReadTimeout     = 5 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)
