package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interview-speech-service/internal/models"
	"interview-speech-service/internal/observability/logging"
	"interview-speech-service/internal/service/recognition"
	"interview-speech-service/internal/service/session"
)

const (
	// publishTimeout bounds each publish made by the outbox goroutine.
	publishTimeout = 2 * time.Second
	// outboxSize is the number of events held while the broker is slow.
	outboxSize = 256
)

type outbound struct {
	publish func(ctx context.Context, key string, event any) error
	key     string
	event   any
	kind    string
}

// SessionObserver publishes manager changes as events keyed by listening
// session. Each transition into listening opens a new session ID.
// Callbacks only queue events; a separate goroutine writes them, and events
// are dropped when the outbox is full.
type SessionObserver struct {
	publisher *Publisher
	managerID string
	ids       *session.Generator
	now       func() time.Time
	timeout   time.Duration
	logger    zerolog.Logger

	mu        sync.Mutex
	sessionID string
	segments  int
	answer    string

	sendMu sync.RWMutex
	closed bool
	outbox chan outbound
	done   chan struct{}
}

// NewSessionObserver returns an observer publishing through p for managerID.
// Call Close to flush queued events.
func NewSessionObserver(p *Publisher, managerID string) *SessionObserver {
	o := &SessionObserver{
		publisher: p,
		managerID: managerID,
		ids:       session.NewGenerator(managerID),
		now:       time.Now,
		timeout:   publishTimeout,
		logger:    logging.WithComponent("session-observer"),
		outbox:    make(chan outbound, outboxSize),
		done:      make(chan struct{}),
	}
	go o.run()
	return o
}

// Close stops accepting events and waits until the queued ones are written.
func (o *SessionObserver) Close() {
	o.sendMu.Lock()
	if !o.closed {
		o.closed = true
		close(o.outbox)
	}
	o.sendMu.Unlock()
	<-o.done
}

func (o *SessionObserver) run() {
	defer close(o.done)
	for ob := range o.outbox {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		if err := ob.publish(ctx, ob.key, ob.event); err != nil {
			o.logger.Warn().Err(err).Str("kind", ob.kind).Str("key", ob.key).Msg("Event not published")
		}
		cancel()
	}
}

func (o *SessionObserver) enqueue(ob outbound) {
	o.sendMu.RLock()
	defer o.sendMu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.outbox <- ob:
	default:
		o.logger.Warn().Str("kind", ob.kind).Str("key", ob.key).Msg("Outbox full, dropping event")
	}
}

// SessionID returns the current listening-session ID, if any has started.
func (o *SessionObserver) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

func (o *SessionObserver) ListeningChanged(listening bool) {
	o.mu.Lock()
	if listening {
		o.sessionID = o.ids.Next()
		o.segments = 0
	}
	sid := o.sessionID
	o.mu.Unlock()

	eventType := models.EventListeningStopped
	if listening {
		eventType = models.EventListeningStarted
	}
	sessionLog := logging.WithSession(o.managerID, sid)
	sessionLog.Info().Bool("listening", listening).Msg("Listening changed")

	o.publishSession(models.SessionEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		ManagerID: o.managerID,
		SessionID: sid,
		Timestamp: o.now().UnixMilli(),
	})
}

func (o *SessionObserver) AnswerChanged(answer string) {
	o.mu.Lock()
	o.answer = answer
	sid := o.sessionID
	o.mu.Unlock()

	if answer != "" {
		return
	}
	o.publishSession(models.SessionEvent{
		EventID:   uuid.NewString(),
		EventType: models.EventAnswerCleared,
		ManagerID: o.managerID,
		SessionID: sid,
		Timestamp: o.now().UnixMilli(),
	})
}

func (o *SessionObserver) InterimChanged(text string) {
	o.mu.Lock()
	sid := o.sessionID
	o.mu.Unlock()
	if sid == "" || text == "" {
		return
	}

	o.enqueue(outbound{
		publish: o.publisher.PublishInterim,
		key:     sid,
		kind:    "interim",
		event: models.AnswerInterim{
			EventID:   uuid.NewString(),
			EventType: models.EventAnswerInterim,
			ManagerID: o.managerID,
			SessionID: sid,
			Timestamp: o.now().UnixMilli(),
			Text:      text,
		},
	})
}

func (o *SessionObserver) SegmentFinalized(text string) {
	o.mu.Lock()
	o.segments++
	idx := o.segments
	sid := o.sessionID
	answer := o.answer
	o.mu.Unlock()
	if sid == "" {
		return
	}

	// AnswerChanged follows SegmentFinalized, so extend the previous answer here.
	if answer == "" {
		answer = text
	} else {
		answer = answer + " " + text
	}

	o.enqueue(outbound{
		publish: o.publisher.PublishFinal,
		key:     sid,
		kind:    "final",
		event: models.AnswerSegment{
			EventID:      uuid.NewString(),
			EventType:    models.EventAnswerSegment,
			ManagerID:    o.managerID,
			SessionID:    sid,
			Timestamp:    o.now().UnixMilli(),
			SegmentIndex: idx,
			Text:         text,
			Answer:       answer,
		},
	})
}

func (o *SessionObserver) SessionError(kind recognition.ErrorKind, err error) {
	ev := models.SessionEvent{
		EventID:   uuid.NewString(),
		EventType: models.EventSessionError,
		ManagerID: o.managerID,
		SessionID: o.SessionID(),
		Timestamp: o.now().UnixMilli(),
		ErrorKind: kind.String(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	o.publishSession(ev)
}

func (o *SessionObserver) StartFailed(attempts int) {
	o.publishSession(models.SessionEvent{
		EventID:   uuid.NewString(),
		EventType: models.EventStartFailed,
		ManagerID: o.managerID,
		Timestamp: o.now().UnixMilli(),
		Attempts:  attempts,
	})
}

func (o *SessionObserver) publishSession(ev models.SessionEvent) {
	key := ev.SessionID
	if key == "" {
		key = ev.ManagerID
	}
	o.enqueue(outbound{publish: o.publisher.PublishSession, key: key, event: ev, kind: "session"})
}
