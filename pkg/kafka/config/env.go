package kafka_config

const (
	EnvKafkaBrokers  = "KAFKA_BROKERS"
	EnvKafkaClientID = "KAFKA_CLIENT_ID"

	EnvEventsTopic          = "KAFKA_EVENTS_TOPIC"
	EnvEventsDLQTopic       = "KAFKA_EVENTS_DLQ_TOPIC"
	EnvBookingOutcomesTopic = "KAFKA_BOOKING_OUTCOMES_TOPIC"
	EnvConsumerGroup        = "KAFKA_CONSUMER_GROUP"

	EnvProducerMaxAttempts  = "KAFKA_PRODUCER_MAX_ATTEMPTS"
	EnvProducerBatchTimeout = "KAFKA_PRODUCER_BATCH_TIMEOUT"
	EnvProducerRequireAcks  = "KAFKA_PRODUCER_REQUIRE_ACKS"
	EnvProducerCompression  = "KAFKA_PRODUCER_COMPRESSION"
	EnvProducerAsync        = "KAFKA_PRODUCER_ASYNC"

	EnvConsumerStartOffset    = "KAFKA_CONSUMER_START_OFFSET"
	EnvConsumerMinBytes       = "KAFKA_CONSUMER_MIN_BYTES"
	EnvConsumerMaxBytes       = "KAFKA_CONSUMER_MAX_BYTES"
	EnvConsumerMaxWait        = "KAFKA_CONSUMER_MAX_WAIT"
	EnvConsumerCommitInterval = "KAFKA_CONSUMER_COMMIT_INTERVAL"
	EnvConsumerSessionTimeout = "KAFKA_CONSUMER_SESSION_TIMEOUT"
	EnvConsumerMaxRetries     = "KAFKA_CONSUMER_MAX_RETRIES"
)
