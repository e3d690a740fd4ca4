package kafka_config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Topics names everything the engine produces to or consumes from.
type Topics struct {
	Events          string
	EventsDLQ       string
	BookingOutcomes string
	ConsumerGroup   string
}

type ProducerConfig struct {
	MaxAttempts  int
	BatchTimeout time.Duration
	RequireAcks  int    // -1 = all, 0 = none, 1 = leader only
	Compression  string // "none", "gzip", "snappy", "lz4", "zstd"
	Async        bool
}

type ConsumerConfig struct {
	StartOffset    int64 // -1 = newest, -2 = oldest
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	CommitInterval time.Duration
	SessionTimeout time.Duration
	MaxRetries     int
}

type Config struct {
	Brokers  []string
	ClientID string
	Topics   Topics
	Producer ProducerConfig
	Consumer ConsumerConfig
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the Kafka configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup and validates it.
// Unparseable values fall back to their defaults.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	env := envReader{lookup: lookup}

	events := env.str(EnvEventsTopic, DefaultEventsTopic)
	cfg := &Config{
		Brokers:  splitBrokers(env.str(EnvKafkaBrokers, DefaultKafkaBrokers)),
		ClientID: env.str(EnvKafkaClientID, DefaultClientID),
		Topics: Topics{
			Events:          events,
			EventsDLQ:       env.str(EnvEventsDLQTopic, events+DLQSuffix),
			BookingOutcomes: env.str(EnvBookingOutcomesTopic, DefaultBookingOutcomesTopic),
			ConsumerGroup:   env.str(EnvConsumerGroup, DefaultConsumerGroup),
		},
		Producer: ProducerConfig{
			MaxAttempts:  env.int(EnvProducerMaxAttempts, DefaultProducerMaxAttempts),
			BatchTimeout: env.duration(EnvProducerBatchTimeout, DefaultProducerBatchTimeout),
			RequireAcks:  env.int(EnvProducerRequireAcks, DefaultProducerRequireAcks),
			Compression:  strings.ToLower(env.str(EnvProducerCompression, DefaultProducerCompression)),
			Async:        env.bool(EnvProducerAsync, DefaultProducerAsync),
		},
		Consumer: ConsumerConfig{
			StartOffset:    int64(env.int(EnvConsumerStartOffset, DefaultConsumerStartOffset)),
			MinBytes:       env.int(EnvConsumerMinBytes, DefaultConsumerMinBytes),
			MaxBytes:       env.int(EnvConsumerMaxBytes, DefaultConsumerMaxBytes),
			MaxWait:        env.duration(EnvConsumerMaxWait, DefaultConsumerMaxWait),
			CommitInterval: env.duration(EnvConsumerCommitInterval, DefaultConsumerCommitInterval),
			SessionTimeout: env.duration(EnvConsumerSessionTimeout, DefaultConsumerSessionTimeout),
			MaxRetries:     env.int(EnvConsumerMaxRetries, DefaultConsumerMaxRetries),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	var problems []error

	if len(cfg.Brokers) == 0 {
		problems = append(problems, errors.New("at least one Kafka broker is required"))
	}
	if cfg.Topics.Events == "" || cfg.Topics.BookingOutcomes == "" || cfg.Topics.ConsumerGroup == "" {
		problems = append(problems, errors.New("events topic, booking outcomes topic and consumer group are required"))
	}
	if cfg.Topics.EventsDLQ == cfg.Topics.Events {
		problems = append(problems, fmt.Errorf("events DLQ topic must differ from %q", cfg.Topics.Events))
	}

	p := cfg.Producer
	if p.MaxAttempts <= 0 {
		problems = append(problems, fmt.Errorf("producer max attempts must be positive, got: %d", p.MaxAttempts))
	}
	if p.BatchTimeout <= 0 {
		problems = append(problems, fmt.Errorf("producer batch timeout must be positive, got: %s", p.BatchTimeout))
	}
	if p.RequireAcks < -1 || p.RequireAcks > 1 {
		problems = append(problems, fmt.Errorf("producer require acks must be -1, 0, or 1, got: %d", p.RequireAcks))
	}
	switch p.Compression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		problems = append(problems, fmt.Errorf("producer compression %q is not supported", p.Compression))
	}

	c := cfg.Consumer
	if c.StartOffset != -1 && c.StartOffset != -2 {
		problems = append(problems, fmt.Errorf("consumer start offset must be -1 (newest) or -2 (oldest), got: %d", c.StartOffset))
	}
	if c.MinBytes <= 0 || c.MaxBytes < c.MinBytes {
		problems = append(problems, fmt.Errorf("consumer min bytes (%d) must be positive and not exceed max bytes (%d)", c.MinBytes, c.MaxBytes))
	}
	if c.MaxWait <= 0 || c.CommitInterval <= 0 || c.SessionTimeout <= 0 {
		problems = append(problems, errors.New("consumer wait, commit interval and session timeout must be positive"))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, fmt.Errorf("consumer max retries cannot be negative, got: %d", c.MaxRetries))
	}

	if len(problems) > 0 {
		return fmt.Errorf("kafka configuration validation failed: %w", errors.Join(problems...))
	}
	return nil
}

func (cfg *Config) LogConfiguration(logFunc func(msg string, args ...any)) {
	if logFunc == nil {
		return
	}

	logFunc("Kafka configuration loaded successfully",
		"brokers", cfg.Brokers,
		"client_id", cfg.ClientID,
		"events_topic", cfg.Topics.Events,
		"events_dlq_topic", cfg.Topics.EventsDLQ,
		"booking_outcomes_topic", cfg.Topics.BookingOutcomes,
		"consumer_group", cfg.Topics.ConsumerGroup,
		"producer_require_acks", cfg.Producer.RequireAcks,
		"producer_compression", cfg.Producer.Compression,
		"producer_async", cfg.Producer.Async,
		"consumer_start_offset", cfg.Consumer.StartOffset,
		"consumer_max_retries", cfg.Consumer.MaxRetries,
	)
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if b := strings.TrimSpace(broker); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type envReader struct {
	lookup LookupFunc
}

func (e envReader) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e envReader) int(key string, def int) int {
	if v, err := strconv.Atoi(e.str(key, "")); err == nil {
		return v
	}
	return def
}

func (e envReader) bool(key string, def bool) bool {
	if v, err := strconv.ParseBool(e.str(key, "")); err == nil {
		return v
	}
	return def
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(e.str(key, "")); err == nil {
		return v
	}
	return def
}
