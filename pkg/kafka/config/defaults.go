package kafka_config

import "time"

const (
	DefaultKafkaBrokers = "localhost:9092"
	DefaultClientID     = "bargain-engine"

	DefaultEventsTopic          = "bargain.events"
	DefaultBookingOutcomesTopic = "booking.outcomes"
	DefaultConsumerGroup        = "bargain-engine"

	// DLQSuffix names the dead-letter topic when none is configured.
	DLQSuffix = ".dlq"

	// Negotiation events are analytics, so the leader ack is enough and
	// the producer batches asynchronously.
	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 5 * time.Millisecond
	DefaultProducerRequireAcks  = 1
	DefaultProducerCompression  = "snappy"
	DefaultProducerAsync        = true

	// Booking outcomes release supplier locks; a new group starts from the
	// oldest retained outcome so none is skipped.
	DefaultConsumerStartOffset    = -2
	DefaultConsumerMinBytes       = 1
	DefaultConsumerMaxBytes       = 1024 * 1024
	DefaultConsumerMaxWait        = 500 * time.Millisecond
	DefaultConsumerCommitInterval = 1 * time.Second
	DefaultConsumerSessionTimeout = 10 * time.Second
	DefaultConsumerMaxRetries     = 3
)
