package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"bargain/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *mockWriter) Close() error { return nil }

type mockReader struct {
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *mockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *mockReader) Close() error { return nil }

func TestMessageBuilder_Build(t *testing.T) {
	msg, err := NewMessage().
		WithKey("session-1").
		WithEventType("round.decided").
		WithSessionID("session-1").
		WithValue(map[string]any{"decision": "COUNTER"}).
		Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if msg.GetEventID() == "" {
		t.Error("expected generated event id")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Error("expected timestamp header")
	}
	if msg.GetSessionID() != "session-1" {
		t.Errorf("session header = %q, want session-1", msg.GetSessionID())
	}
}

func TestMessageBuilder_BuildRejectsUnencodableValue(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Build() error = %v, want ErrInvalidMessage", err)
	}
}

func TestMessage_DecodeValue(t *testing.T) {
	type outcome struct {
		SessionID string `json:"session_id"`
		Amount    float64 `json:"amount"`
	}
	want := outcome{SessionID: "session-1", Amount: 126}

	jsonMsg, err := NewMessage().WithValue(want).Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	cborMsg, err := NewMessage().WithCBORValue(want).Build()
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	legacy := Message{Value: jsonMsg.Value, Headers: map[string]string{}}

	for name, msg := range map[string]Message{"json": jsonMsg, "cbor": cborMsg, "no content type": legacy} {
		t.Run(name, func(t *testing.T) {
			var got outcome
			if err := msg.DecodeValue(&got); err != nil {
				t.Fatalf("DecodeValue() unexpected error: %v", err)
			}
			if got != want {
				t.Errorf("DecodeValue() = %+v, want %+v", got, want)
			}
		})
	}

	unknown := Message{Value: []byte("x"), Headers: map[string]string{HeaderContentType: "text/plain"}}
	var v outcome
	if err := unknown.DecodeValue(&v); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("DecodeValue() error = %v, want ErrInvalidMessage", err)
	}
}

func TestMessage_RetryCount(t *testing.T) {
	msg := Message{Headers: map[string]string{}}
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	if got := msg.GetRetryCount(); got != 12 {
		t.Errorf("GetRetryCount() = %d, want 12", got)
	}
}

func TestProducer_Publish(t *testing.T) {
	writer := &mockWriter{}
	p := &Producer{writer: writer, topic: "bargain.events", log: logger.Discard()}

	var seenTopic string
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		seenTopic = msg.Topic
		return next(ctx, msg)
	})

	msg, _ := NewMessage().WithKey("s1").WithValue("payload").Build()
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 written message, got %d", len(writer.messages))
	}
	if seenTopic != "bargain.events" {
		t.Errorf("middleware saw topic %q", seenTopic)
	}
}

func TestProducer_PublishValidation(t *testing.T) {
	p := &Producer{writer: &mockWriter{}, topic: "t", log: logger.Discard()}

	if err := p.Publish(context.Background(), Message{Value: []byte("x")}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if err := p.Publish(context.Background(), Message{Key: "k"}); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}

	_ = p.Close()
	if err := p.Publish(context.Background(), Message{Key: "k", Value: []byte("x")}); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
}

func TestProducer_FailedPublishGoesToDLQ(t *testing.T) {
	dlq := &mockWriter{}
	p := &Producer{
		writer:    &mockWriter{err: errors.New("broker down")},
		dlqWriter: dlq,
		topic:     "bargain.events",
		log:       logger.Discard(),
	}

	msg, _ := NewMessage().WithKey("s1").WithValue("payload").Build()
	if err := p.Publish(context.Background(), msg); err == nil {
		t.Fatal("expected publish error")
	}
	if len(dlq.messages) != 1 {
		t.Fatalf("expected DLQ write, got %d", len(dlq.messages))
	}
}

func TestConsumer_RetriesTransientErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &mockReader{
		messages: []kafka.Message{{Key: []byte("k"), Value: []byte("{}"), Offset: 7}},
		cancel:   cancel,
	}

	attempts := 0
	handler := func(ctx context.Context, msg Message) error {
		attempts++
		if attempts < 3 {
			return NewTransientError("store busy", nil)
		}
		return nil
	}

	c := newConsumer(reader, "booking.outcomes", "g", 3, handler, logger.Discard())
	_ = c.Start(ctx)

	if attempts != 3 {
		t.Errorf("handler attempts = %d, want 3", attempts)
	}
	if len(reader.committed) != 1 || reader.committed[0] != 7 {
		t.Errorf("committed offsets = %v, want [7]", reader.committed)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"transient wrapper", NewTransientError("x", nil), ErrorTypeTransient},
		{"permanent wrapper", NewPermanentError("x", nil), ErrorTypePermanent},
		{"network text", errors.New("dial tcp: Connection Refused"), ErrorTypeTransient},
		{"deadline", context.DeadlineExceeded, ErrorTypeTransient},
		{"broker retriable", fmt.Errorf("write: %w", kafka.LeaderNotAvailable), ErrorTypeTransient},
		{"broker fatal", kafka.MessageSizeTooLarge, ErrorTypePermanent},
		{"invalid message", fmt.Errorf("decode: %w", ErrInvalidMessage), ErrorTypePermanent},
		{"unknown", errors.New("bad json"), ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}
