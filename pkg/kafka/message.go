package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Message is the transport form of a negotiation event or a booking
// outcome. Key is the session id so one session stays on one partition.
type Message struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderSessionID     = "session-id"
	HeaderSchemaVersion = "schema-version"
	HeaderSource        = "source"
	HeaderContentType   = "content-type"
	HeaderTimestamp     = "timestamp"
	HeaderRetryCount    = "retry-count"
	HeaderOriginalTopic = "original-topic"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

type MessageBuilder struct {
	msg Message
	err error
}

func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		msg: Message{
			Headers:   make(map[string]string),
			Timestamp: time.Now().UTC(),
		},
	}
}

func (mb *MessageBuilder) WithKey(key string) *MessageBuilder {
	mb.msg.Key = key
	return mb
}

// WithValue JSON-encodes value. Encoding failures surface from Build.
func (mb *MessageBuilder) WithValue(value any) *MessageBuilder {
	return mb.encode(ContentTypeJSON, json.Marshal, value)
}

// WithCBORValue is WithValue for producers that share the compact binary
// encoding used by offer capsules.
func (mb *MessageBuilder) WithCBORValue(value any) *MessageBuilder {
	return mb.encode(ContentTypeCBOR, cbor.Marshal, value)
}

func (mb *MessageBuilder) encode(contentType string, marshal func(any) ([]byte, error), value any) *MessageBuilder {
	data, err := marshal(value)
	if err != nil {
		mb.err = fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		return mb
	}
	mb.msg.Value = data
	mb.msg.Headers[HeaderContentType] = contentType
	return mb
}

func (mb *MessageBuilder) WithHeader(key, value string) *MessageBuilder {
	mb.msg.Headers[key] = value
	return mb
}

// WithEventID sets the event ID, generating a UUID when empty.
func (mb *MessageBuilder) WithEventID(eventID string) *MessageBuilder {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	mb.msg.Headers[HeaderEventID] = eventID
	return mb
}

func (mb *MessageBuilder) WithEventType(eventType string) *MessageBuilder {
	mb.msg.Headers[HeaderEventType] = eventType
	return mb
}

func (mb *MessageBuilder) WithSessionID(sessionID string) *MessageBuilder {
	mb.msg.Headers[HeaderSessionID] = sessionID
	return mb
}

func (mb *MessageBuilder) WithSchemaVersion(version string) *MessageBuilder {
	mb.msg.Headers[HeaderSchemaVersion] = version
	return mb
}

func (mb *MessageBuilder) WithSource(source string) *MessageBuilder {
	mb.msg.Headers[HeaderSource] = source
	return mb
}

func (mb *MessageBuilder) WithTimestamp(ts time.Time) *MessageBuilder {
	if !ts.IsZero() {
		mb.msg.Timestamp = ts.UTC()
	}
	return mb
}

func (mb *MessageBuilder) Build() (Message, error) {
	if mb.err != nil {
		return Message{}, mb.err
	}
	if mb.msg.Headers[HeaderEventID] == "" {
		mb.msg.Headers[HeaderEventID] = uuid.NewString()
	}
	mb.msg.Headers[HeaderTimestamp] = mb.msg.Timestamp.Format(time.RFC3339Nano)
	return mb.msg, nil
}

// MessageHandler processes one consumed message. A non-nil error triggers
// a retry and, once retries are spent, the dead-letter path.
type MessageHandler func(ctx context.Context, msg Message) error

// DecodeValue decodes the payload according to its content-type header.
// Messages without one are treated as JSON.
func (m *Message) DecodeValue(v any) error {
	switch ct := m.Headers[HeaderContentType]; ct {
	case "", ContentTypeJSON:
		return json.Unmarshal(m.Value, v)
	case ContentTypeCBOR:
		return cbor.Unmarshal(m.Value, v)
	default:
		return fmt.Errorf("%w: unsupported content type %q", ErrInvalidMessage, ct)
	}
}

func (m *Message) GetEventID() string {
	return m.Headers[HeaderEventID]
}

func (m *Message) GetSessionID() string {
	return m.Headers[HeaderSessionID]
}

func (m *Message) GetEventType() string {
	return m.Headers[HeaderEventType]
}

func (m *Message) GetRetryCount() int {
	if count, err := strconv.Atoi(m.Headers[HeaderRetryCount]); err == nil {
		return count
	}
	return 0
}

func (m *Message) IncrementRetryCount() {
	m.Headers[HeaderRetryCount] = strconv.Itoa(m.GetRetryCount() + 1)
}
