package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"interview-speech-service/internal/models"
	"interview-speech-service/internal/schema"
)

// fakeWriter records messages instead of writing to Kafka.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func newTestPublisher() (*Publisher, *fakeWriter, *fakeWriter, *fakeWriter) {
	interim, final, sess := &fakeWriter{}, &fakeWriter{}, &fakeWriter{}
	p := New(&Config{Enabled: false, Principal: "interview-svc"})
	p.writerInterim = interim
	p.writerFinal = final
	p.writerSession = sess
	p.topicInterim = "interview.answer.interim"
	p.topicFinal = "interview.answer.final"
	p.topicSession = "interview.session"
	p.enabled = true
	return p, interim, final, sess
}

func segmentEvent() models.AnswerSegment {
	return models.AnswerSegment{
		EventID:   "evt-1",
		EventType: models.EventAnswerSegment,
		ManagerID: "mgr-1",
		SessionID: "mgr-1-session-1",
		Text:      "안녕하세요",
		Answer:    "안녕하세요",
	}
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerInterim != nil || p.writerFinal != nil || p.writerSession != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicInterim: "i",
		TopicFinal:   "f",
		TopicSession: "s",
		Principal:    "svc",
	})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected publisher to be enabled")
	}
	w, ok := p.writerFinal.(*kafka.Writer)
	if !ok {
		t.Fatalf("writerFinal is %T, want *kafka.Writer", p.writerFinal)
	}
	if w.Topic != "f" {
		t.Errorf("final writer topic = %q, want f", w.Topic)
	}
}

func TestPublisher_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})
	ctx := context.Background()

	if err := p.PublishFinal(ctx, "k", segmentEvent()); err != nil {
		t.Errorf("PublishFinal: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Channels cannot be marshaled
	if err := p.PublishInterim(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_ValidationFailure(t *testing.T) {
	p, _, final, _ := newTestPublisher()

	ev := segmentEvent()
	ev.SessionID = ""
	err := p.PublishFinal(context.Background(), "k", ev)
	if !errors.Is(err, schema.ErrMissingField) {
		t.Fatalf("PublishFinal = %v, want ErrMissingField", err)
	}
	if len(final.messages()) != 0 {
		t.Error("invalid event must not be written")
	}
}

func TestPublisher_RoutesByTopic(t *testing.T) {
	p, interim, final, sess := newTestPublisher()
	ctx := context.Background()

	if err := p.PublishFinal(ctx, "mgr-1-session-1", segmentEvent()); err != nil {
		t.Fatalf("PublishFinal: %v", err)
	}
	if err := p.PublishInterim(ctx, "mgr-1-session-1", models.AnswerInterim{
		EventID: "evt-2", EventType: models.EventAnswerInterim, ManagerID: "mgr-1", SessionID: "mgr-1-session-1", Text: "안녕",
	}); err != nil {
		t.Fatalf("PublishInterim: %v", err)
	}
	if err := p.PublishSession(ctx, "mgr-1", models.SessionEvent{
		EventID: "evt-3", EventType: models.EventStartFailed, ManagerID: "mgr-1", Attempts: 3,
	}); err != nil {
		t.Fatalf("PublishSession: %v", err)
	}

	if len(interim.messages()) != 1 || len(final.messages()) != 1 || len(sess.messages()) != 1 {
		t.Fatalf("messages interim=%d final=%d session=%d", len(interim.messages()), len(final.messages()), len(sess.messages()))
	}

	msg := final.messages()[0]
	if string(msg.Key) != "mgr-1-session-1" {
		t.Errorf("key = %q", msg.Key)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["eventType"] != "final" || headers["principal"] != "interview-svc" {
		t.Errorf("headers = %v", headers)
	}

	var decoded models.AnswerSegment
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.Text != "안녕하세요" {
		t.Errorf("payload text = %q", decoded.Text)
	}
}

func TestPublisher_WriteError(t *testing.T) {
	p, _, final, _ := newTestPublisher()
	final.err = errors.New("broker unavailable")

	if err := p.PublishFinal(context.Background(), "k", segmentEvent()); err == nil {
		t.Error("expected write error")
	}
}

func TestPublisher_CloseClosesWriters(t *testing.T) {
	p, interim, final, sess := newTestPublisher()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !interim.closed || !final.closed || !sess.closed {
		t.Error("expected all writers closed")
	}
}
