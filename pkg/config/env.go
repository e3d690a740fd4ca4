package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvMySQLDSN = "MYSQL_DSN"

	EnvPort           = "PORT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvServiceVersion = "SERVICE_VERSION"
	EnvAdminToken     = "ADMIN_TOKEN"

	EnvCapsuleSecret    = "CAPSULE_SECRET"
	EnvCapsuleTTL       = "CAPSULE_TTL"
	EnvCapsuleClockSkew = "CAPSULE_CLOCK_SKEW"
	EnvDecisionBudget   = "DECISION_BUDGET"
	EnvLockTTL          = "SUPPLIER_LOCK_TTL"
	EnvSweepInterval    = "SESSION_SWEEP_INTERVAL"
	EnvPolicyFile       = "POLICY_FILE"

	EnvKafkaEnabled = "KAFKA_ENABLED"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
