// Package events carries negotiation events out of the engine and booking
// outcomes back into it.
package events

import (
	"context"
	"fmt"
	"time"

	"bargain/pkg/kafka"
	"bargain/pkg/logger"
	"bargain/pkg/model"

	"github.com/google/uuid"
)

const (
	SessionStarted     = "bargain.session_started"
	RoundDecided       = "bargain.round_decided"
	SessionAccepted    = "bargain.session_accepted"
	SessionExpired     = "bargain.session_expired"
	ClientEvent        = "bargain.client_event"
	NeverLossViolation = "bargain.never_loss_violation"
)

const (
	SourceEngine = "engine"
	SourceClient = "client"

	schemaVersion = "1"
)

// Publisher emits events. Implementations must not block a negotiation
// round beyond the caller's deadline.
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
	Close() error
}

// New fills the identifiers of an engine event.
func New(name, sessionID string, payload map[string]any, at time.Time) *model.Event {
	return &model.Event{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Name:       name,
		Payload:    payload,
		Source:     SourceEngine,
		OccurredAt: at,
	}
}

type kafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher publishes events keyed by session id so every event of
// one session lands on the same partition.
func NewKafkaPublisher(producer *kafka.Producer) Publisher {
	return &kafkaPublisher{producer: producer}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event *model.Event) error {
	msg, err := kafka.NewMessage().
		WithKey(event.SessionID).
		WithValue(event).
		WithEventID(event.ID).
		WithEventType(event.Name).
		WithSessionID(event.SessionID).
		WithSource(event.Source).
		WithSchemaVersion(schemaVersion).
		WithTimestamp(event.OccurredAt).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build event message: %w", err)
	}
	return p.producer.Publish(ctx, msg)
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

type logPublisher struct {
	log *logger.Logger
}

// NewLogPublisher writes events to the structured log. It is used when
// Kafka is disabled.
func NewLogPublisher(log *logger.Logger) Publisher {
	return &logPublisher{log: log}
}

func (p *logPublisher) Publish(_ context.Context, event *model.Event) error {
	p.log.Info("Bargain event",
		"event_id", event.ID,
		"event_type", event.Name,
		"session_id", event.SessionID,
		"source", event.Source,
		"payload", event.Payload,
	)
	return nil
}

func (p *logPublisher) Close() error {
	return nil
}
