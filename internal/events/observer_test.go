package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"interview-speech-service/internal/models"
	"interview-speech-service/internal/service/recognition"
	"interview-speech-service/internal/service/speech"
)

func decodeSession(t *testing.T, w *fakeWriter, i int) models.SessionEvent {
	t.Helper()
	msgs := w.messages()
	if len(msgs) <= i {
		t.Fatalf("only %d session messages", len(msgs))
	}
	var ev models.SessionEvent
	if err := json.Unmarshal(msgs[i].Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestSessionObserver_ListeningOpensSession(t *testing.T) {
	p, _, _, sess := newTestPublisher()
	o := NewSessionObserver(p, "mgr-1")

	o.ListeningChanged(true)
	if o.SessionID() != "mgr-1-session-1" {
		t.Fatalf("SessionID = %q", o.SessionID())
	}
	o.ListeningChanged(false)
	o.ListeningChanged(true)
	if o.SessionID() != "mgr-1-session-2" {
		t.Errorf("SessionID after restart = %q", o.SessionID())
	}
	o.Close()

	started := decodeSession(t, sess, 0)
	if started.EventType != models.EventListeningStarted || started.SessionID != "mgr-1-session-1" {
		t.Errorf("first event = %+v", started)
	}
	stopped := decodeSession(t, sess, 1)
	if stopped.EventType != models.EventListeningStopped || stopped.SessionID != "mgr-1-session-1" {
		t.Errorf("second event = %+v", stopped)
	}
}

func TestSessionObserver_Segments(t *testing.T) {
	p, interim, final, _ := newTestPublisher()
	o := NewSessionObserver(p, "mgr-1")

	// Nothing is published before a session exists.
	o.InterimChanged("안녕")
	o.SegmentFinalized("안녕하세요")
	if len(interim.messages()) != 0 || len(final.messages()) != 0 {
		t.Fatal("published without a session")
	}

	o.ListeningChanged(true)
	o.InterimChanged("안녕")
	o.InterimChanged("")
	o.SegmentFinalized("안녕하세요")
	o.AnswerChanged("안녕하세요")
	o.SegmentFinalized("반갑습니다")
	o.AnswerChanged("안녕하세요 반갑습니다")
	o.Close()

	if n := len(interim.messages()); n != 1 {
		t.Errorf("interim messages = %d, want 1", n)
	}
	msgs := final.messages()
	if len(msgs) != 2 {
		t.Fatalf("final messages = %d, want 2", len(msgs))
	}
	var second models.AnswerSegment
	if err := json.Unmarshal(msgs[1].Value, &second); err != nil {
		t.Fatal(err)
	}
	if second.SegmentIndex != 2 || second.Answer != "안녕하세요 반갑습니다" {
		t.Errorf("second segment = %+v", second)
	}
}

func TestSessionObserver_ErrorsAndClear(t *testing.T) {
	p, _, _, sess := newTestPublisher()
	o := NewSessionObserver(p, "mgr-1")

	o.SessionError(recognition.ErrorNetwork, errors.New("connection reset"))
	o.StartFailed(5)
	o.AnswerChanged("")
	o.Close()

	errEv := decodeSession(t, sess, 0)
	if errEv.EventType != models.EventSessionError || errEv.ErrorKind != "network" || errEv.Error != "connection reset" {
		t.Errorf("error event = %+v", errEv)
	}
	failed := decodeSession(t, sess, 1)
	if failed.EventType != models.EventStartFailed || failed.Attempts != 5 {
		t.Errorf("start failed event = %+v", failed)
	}
	if string(sess.messages()[1].Key) != "mgr-1" {
		t.Errorf("key without session = %q, want manager ID", sess.messages()[1].Key)
	}
	cleared := decodeSession(t, sess, 2)
	if cleared.EventType != models.EventAnswerCleared {
		t.Errorf("clear event = %+v", cleared)
	}
}

// hangingWriter blocks every write until its context ends.
type hangingWriter struct {
	mu     sync.Mutex
	writes int
}

func (w *hangingWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	w.mu.Lock()
	w.writes++
	w.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (w *hangingWriter) Close() error { return nil }

// stopEngine reports when Stop is called.
type stopEngine struct {
	cb      recognition.Callback
	stopped chan struct{}
}

func (e *stopEngine) Start() error { return nil }

func (e *stopEngine) Stop() error {
	close(e.stopped)
	return nil
}

func (e *stopEngine) Abort() error { return nil }

func TestSessionObserver_SlowBrokerDoesNotDelayEngine(t *testing.T) {
	p, _, _, _ := newTestPublisher()
	hung := &hangingWriter{}
	p.writerInterim = hung
	p.writerFinal = hung
	p.writerSession = hung
	o := NewSessionObserver(p, "mgr-1")
	o.timeout = 50 * time.Millisecond

	eng := &stopEngine{stopped: make(chan struct{})}
	m := speech.NewManager(context.Background(),
		func(_ context.Context, _ recognition.Config, cb recognition.Callback) (recognition.Engine, error) {
			eng.cb = cb
			return eng, nil
		},
		speech.WithObservers(o),
	)
	t.Cleanup(func() {
		m.Close()
		o.Close()
	})

	m.StartListening(true)
	eng.cb.OnStart()
	deadline := time.Now().Add(time.Second)
	for !m.IsListening() {
		if time.Now().After(deadline) {
			t.Fatal("never started listening")
		}
		time.Sleep(time.Millisecond)
	}
	eng.cb.OnResult(0, []recognition.Segment{{Text: "안녕"}})
	eng.cb.OnResult(0, []recognition.Segment{{Text: "안녕하세요", Final: true}})

	start := time.Now()
	m.StopListening()
	select {
	case <-eng.stopped:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("engine Stop not issued %v after StopListening", time.Since(start))
	}
}

func TestSessionObserver_FullOutboxDrops(t *testing.T) {
	p, _, _, _ := newTestPublisher()
	hung := &hangingWriter{}
	p.writerSession = hung
	o := NewSessionObserver(p, "mgr-1")
	o.timeout = time.Millisecond
	t.Cleanup(o.Close)

	start := time.Now()
	for i := 0; i < outboxSize+50; i++ {
		o.StartFailed(i + 1)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("callbacks blocked for %v", elapsed)
	}
	if n := len(o.outbox); n > outboxSize {
		t.Errorf("outbox = %d", n)
	}
}
