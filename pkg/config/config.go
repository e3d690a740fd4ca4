package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"bargain/pkg/client"
	kafka_config "bargain/pkg/kafka/config"
	"bargain/pkg/logger"
)

const minCapsuleSecretLength = 32

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisDialTimeout time.Duration
	RedisOpTimeout   time.Duration

	MySQLDSN string

	Port           string
	ServiceVersion string
	AdminToken     string

	CapsuleSecret    string
	CapsuleTTL       time.Duration
	CapsuleClockSkew time.Duration
	DecisionBudget   time.Duration
	LockTTL          time.Duration
	SweepInterval    time.Duration
	PolicyFile       string

	KafkaEnabled bool

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
	Kafka  *kafka_config.Config
}

func Load(serviceName string) *Config {
	cfg := newConfig(serviceName)

	if cfg.KafkaEnabled {
		kafkaCfg, err := kafka_config.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err.Error())
		}
		cfg.Kafka = kafkaCfg
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// LoadJob loads configuration for one-shot jobs that only touch storage.
// Service-only settings such as the capsule secret are not required.
func LoadJob(jobName string) *Config {
	cfg := newConfig(jobName)
	if err := cfg.ValidateStorage(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err.Error())
	}
	cfg.Log.Info("Job configuration loaded",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mysql_mirror_enabled", cfg.MySQLDSN != "",
		"redis_addr", cfg.RedisAddr,
	)
	return cfg
}

func newConfig(serviceName string) *Config {
	return &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:        getEnvStr(EnvRedisAddr, ""),
		RedisPassword:    getEnvStr(EnvRedisPassword, ""),
		RedisDB:          getEnvNum(EnvRedisDB, DefaultRedisDB),
		RedisDialTimeout: DefaultRedisDialTimeout,
		RedisOpTimeout:   DefaultRedisOpTimeout,

		MySQLDSN: getEnvStr(EnvMySQLDSN, ""),

		Port:           getEnvStr(EnvPort, DefaultPort),
		ServiceVersion: getEnvStr(EnvServiceVersion, DefaultServiceVersion),
		AdminToken:     getEnvStr(EnvAdminToken, ""),

		CapsuleSecret:    getEnvStr(EnvCapsuleSecret, ""),
		CapsuleTTL:       getEnvDuration(EnvCapsuleTTL, DefaultCapsuleTTL),
		CapsuleClockSkew: getEnvDuration(EnvCapsuleClockSkew, DefaultCapsuleClockSkew),
		DecisionBudget:   getEnvDuration(EnvDecisionBudget, DefaultDecisionBudget),
		LockTTL:          getEnvDuration(EnvLockTTL, DefaultLockTTL),
		SweepInterval:    getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		PolicyFile:       getEnvStr(EnvPolicyFile, ""),

		KafkaEnabled: getEnvBool(EnvKafkaEnabled, false),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// SetRedis connects the cache only when REDIS_ADDR is configured.
func (cfg *Config) SetRedis() {
	if cfg.RedisAddr == "" {
		cfg.Log.Warn("REDIS_ADDR not set, falling back to in-process cache")
		return
	}
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisDialTimeout)
}

// SetMySQL opens the negotiation log mirror only when MYSQL_DSN is configured.
func (cfg *Config) SetMySQL() {
	if cfg.MySQLDSN == "" {
		return
	}
	cfg.Client.SetMySQL(cfg.Log, cfg.MySQLDSN, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	errors := cfg.storageProblems()

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if len(cfg.CapsuleSecret) < minCapsuleSecretLength {
		errors = append(errors, fmt.Sprintf("CapsuleSecret must be at least %d characters", minCapsuleSecretLength))
	}
	if cfg.CapsuleTTL <= 0 {
		errors = append(errors, fmt.Sprintf("CapsuleTTL must be positive, got: %s", cfg.CapsuleTTL))
	}
	if cfg.CapsuleClockSkew < 0 {
		errors = append(errors, fmt.Sprintf("CapsuleClockSkew cannot be negative, got: %s", cfg.CapsuleClockSkew))
	}
	if cfg.DecisionBudget <= 0 || cfg.DecisionBudget > cfg.RequestTimeout {
		errors = append(errors, fmt.Sprintf("DecisionBudget must be positive and not exceed RequestTimeout (%s), got: %s", cfg.RequestTimeout, cfg.DecisionBudget))
	}
	if cfg.LockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("LockTTL must be positive, got: %s", cfg.LockTTL))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}

	if cfg.KafkaEnabled && cfg.Kafka == nil {
		errors = append(errors, "Kafka configuration is required when Kafka is enabled")
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	return joinProblems(errors)
}

// ValidateStorage checks only the settings needed to reach the stores.
func (cfg *Config) ValidateStorage() error {
	return joinProblems(cfg.storageProblems())
}

func (cfg *Config) storageProblems() []string {
	var errors []string
	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}
	return errors
}

func joinProblems(errors []string) error {
	if len(errors) == 0 {
		return nil
	}
	errMsg := "Configuration validation failed:\n"
	for i, err := range errors {
		errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
	}
	return fmt.Errorf("%s", errMsg)
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_db", cfg.RedisDB,
		"mysql_mirror_enabled", cfg.MySQLDSN != "",
		"port", cfg.Port,
		"service_version", cfg.ServiceVersion,
		"admin_token_set", cfg.AdminToken != "",
		"capsule_secret_set", cfg.CapsuleSecret != "",
		"capsule_ttl", cfg.CapsuleTTL,
		"capsule_clock_skew", cfg.CapsuleClockSkew,
		"decision_budget", cfg.DecisionBudget,
		"lock_ttl", cfg.LockTTL,
		"sweep_interval", cfg.SweepInterval,
		"policy_file", cfg.PolicyFile,
		"kafka_enabled", cfg.KafkaEnabled,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
	if cfg.Kafka != nil {
		cfg.Kafka.LogConfiguration(cfg.Log.Info)
	}
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
