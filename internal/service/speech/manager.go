// Package speech provides the speech session manager that mediates between a
// recognition engine and callers that start, stop and read answers.
package speech

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interview-speech-service/internal/observability/logging"
	"interview-speech-service/internal/observability/metrics"
	"interview-speech-service/internal/service/recognition"
	"interview-speech-service/internal/service/session"
)

// Status is a read-only view of the manager.
type Status struct {
	ManagerID     string `json:"managerId"`
	State         string `json:"state"`
	Listening     bool   `json:"listening"`
	Supported     bool   `json:"supported"`
	CurrentAnswer string `json:"currentAnswer"`
	Interim       string `json:"interim"`
	LastError     string `json:"lastError,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithEngineConfig sets the engine configuration passed to the factory.
func WithEngineConfig(cfg recognition.Config) Option {
	return func(m *Manager) { m.engineCfg = cfg }
}

// WithRetryPolicy sets the policy for starts rejected while the engine shuts down.
func WithRetryPolicy(p session.RetryPolicy) Option {
	return func(m *Manager) { m.retryPolicy = p }
}

// WithScheduler replaces the timer used for retries.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithObservers registers observers.
func WithObservers(obs ...Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, obs...) }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics replaces the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithID sets the manager ID used in logs and events.
func WithID(id string) Option {
	return func(m *Manager) { m.id = id }
}

// Manager owns one recognition engine and folds its events into a listening
// flag and an answer buffer. Commands return immediately; their effects are
// carried out in order on a single worker goroutine.
type Manager struct {
	id          string
	engine      recognition.Engine
	engineCfg   recognition.Config
	retryPolicy session.RetryPolicy
	scheduler   Scheduler
	observers   []Observer
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	mu    sync.Mutex
	snap  session.Snapshot
	queue []session.Effect

	// Owned by the worker goroutine.
	retry          Timer
	listeningSince time.Time

	wake chan struct{}
	done chan struct{}
}

// NewManager probes for a recognition engine through factory and returns a
// manager. A nil factory or a factory error leaves the manager unsupported:
// every operation is then a no-op.
func NewManager(ctx context.Context, factory recognition.Factory, opts ...Option) *Manager {
	m := &Manager{
		id:          uuid.NewString(),
		engineCfg:   recognition.DefaultConfig(),
		retryPolicy: session.DefaultRetryPolicy(),
		scheduler:   realScheduler{},
		logger:      logging.WithComponent("speech-manager"),
		metrics:     metrics.DefaultMetrics,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("managerId", m.id).Logger()

	supported := false
	if factory != nil {
		engine, err := factory(ctx, m.engineCfg, engineCallback{m: m})
		switch {
		case err == nil && engine != nil:
			m.engine = engine
			supported = true
		case err == nil || errors.Is(err, recognition.ErrUnsupported):
			m.logger.Info().Msg("Speech recognition not available")
		default:
			m.logger.Warn().Err(err).Msg("Speech recognition engine could not be created")
		}
	}
	m.snap = session.NewSnapshot(supported, m.retryPolicy)

	m.logger.Info().
		Bool("supported", supported).
		Str("locale", m.engineCfg.Locale).
		Bool("continuous", m.engineCfg.Continuous).
		Bool("interimResults", m.engineCfg.InterimResults).
		Msg("Speech session manager created")

	go m.run()
	return m
}

// ID returns the manager ID.
func (m *Manager) ID() string {
	return m.id
}

// StartListening starts recognition if speech is supported, the microphone is
// enabled and no session is active or starting.
func (m *Manager) StartListening(microphoneEnabled bool) {
	effects := m.dispatch(session.Event{Kind: session.EventStartRequested, MicrophoneEnabled: microphoneEnabled})
	if m.SpeechSupported() {
		m.metrics.RecordStartRequest(len(effects) > 0)
	}
}

// StopListening asks the engine to stop if listening. The state becomes idle
// once the engine reports the end.
func (m *Manager) StopListening() {
	m.dispatch(session.Event{Kind: session.EventStopRequested})
}

// ClearCurrentAnswer empties the answer buffer.
func (m *Manager) ClearCurrentAnswer() {
	m.dispatch(session.Event{Kind: session.EventClearRequested})
}

// TakeCurrentAnswerAndClear returns the current answer and empties the buffer
// in one step.
func (m *Manager) TakeCurrentAnswerAndClear() string {
	for _, e := range m.dispatch(session.Event{Kind: session.EventTakeRequested}) {
		if e.Kind == session.EffectAnswerTaken {
			return e.Text
		}
	}
	return ""
}

// Close cancels pending retries, releases the engine and waits for the
// worker to finish. It is safe to call more than once.
func (m *Manager) Close() {
	m.dispatch(session.Event{Kind: session.EventCloseRequested})
	<-m.done
}

// IsListening reports whether the engine is listening.
func (m *Manager) IsListening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.IsListening()
}

// CurrentAnswer returns the finalized segments joined by single spaces.
func (m *Manager) CurrentAnswer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Answer()
}

// SpeechSupported reports whether an engine was found at construction.
func (m *Manager) SpeechSupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Supported
}

// InterimText returns the latest interim preview.
func (m *Manager) InterimText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Interim
}

// State returns the session state.
func (m *Manager) State() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.State
}

// Status returns a read-only view of the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	snap := m.snap
	m.mu.Unlock()

	st := Status{
		ManagerID:     m.id,
		State:         snap.State.String(),
		Listening:     snap.IsListening(),
		Supported:     snap.Supported,
		CurrentAnswer: snap.Answer(),
		Interim:       snap.Interim,
	}
	if snap.LastError != nil {
		st.LastError = snap.LastError.String()
	}
	return st
}

// dispatch reduces ev into the snapshot and queues the resulting effects.
func (m *Manager) dispatch(ev session.Event) []session.Effect {
	m.mu.Lock()
	prev := m.snap.State
	next, effects := session.Reduce(m.snap, ev)
	m.snap = next
	if len(effects) > 0 {
		m.queue = append(m.queue, effects...)
	}
	m.mu.Unlock()

	if len(effects) > 0 {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}

	if prev != next.State {
		m.logger.Debug().
			Str("event", ev.Kind.String()).
			Str("from", prev.String()).
			Str("to", next.State.String()).
			Msg("Session state changed")
	}
	return effects
}

func (m *Manager) run() {
	defer close(m.done)
	for range m.wake {
		for {
			m.mu.Lock()
			batch := m.queue
			m.queue = nil
			closed := m.snap.Closed
			m.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			for _, e := range batch {
				m.execute(e)
			}
		}
	}
}

func (m *Manager) execute(e session.Effect) {
	switch e.Kind {
	case session.EffectStartEngine:
		m.startEngine(e.Attempts)
	case session.EffectStopEngine:
		if err := m.engine.Stop(); err != nil {
			m.logger.Warn().Err(err).Msg("Engine refused stop")
			m.dispatch(session.Event{Kind: session.EventStopRejected, Err: err})
		}
	case session.EffectScheduleRetry:
		m.logger.Debug().
			Int("attempts", e.Attempts).
			Dur("delay", e.Delay).
			Msg("Engine still shutting down, retrying start")
		m.retry = m.scheduler.AfterFunc(e.Delay, func() {
			m.dispatch(session.Event{Kind: session.EventRetryFired})
		})
	case session.EffectCancelRetry:
		if m.retry != nil {
			m.retry.Stop()
			m.retry = nil
		}
	case session.EffectReleaseEngine:
		if m.engine != nil {
			if err := m.engine.Abort(); err != nil {
				m.logger.Warn().Err(err).Msg("Engine release failed")
			}
		}
		m.logger.Info().Msg("Speech session manager closed")
	case session.EffectNotifyListening:
		m.recordListening(e.Listening)
		for _, o := range m.observers {
			o.ListeningChanged(e.Listening)
		}
	case session.EffectNotifyAnswer:
		for _, o := range m.observers {
			o.AnswerChanged(e.Text)
		}
	case session.EffectNotifyInterim:
		m.metrics.RecordInterimUpdate()
		for _, o := range m.observers {
			o.InterimChanged(e.Text)
		}
	case session.EffectNotifySegment:
		m.metrics.RecordFinalSegment()
		for _, o := range m.observers {
			o.SegmentFinalized(e.Text)
		}
	case session.EffectNotifyError:
		m.metrics.RecordEngineError(e.ErrorKind.String())
		m.logger.Warn().
			Err(e.Err).
			Str("errorKind", e.ErrorKind.String()).
			Msg("Speech recognition error")
		for _, o := range m.observers {
			o.SessionError(e.ErrorKind, e.Err)
		}
	case session.EffectNotifyStartFailed:
		m.metrics.RecordStartFailed("retries_exhausted")
		m.logger.Error().
			Int("attempts", e.Attempts).
			Msg("Engine never became ready, giving up start")
		for _, o := range m.observers {
			o.StartFailed(e.Attempts)
		}
	case session.EffectAnswerTaken:
		m.metrics.RecordAnswerTaken(utf8.RuneCountInString(e.Text))
	}
}

func (m *Manager) startEngine(attempt int) {
	err := m.engine.Start()
	switch {
	case err == nil:
		m.metrics.RecordStartAttempt("accepted")
		m.dispatch(session.Event{Kind: session.EventStartAccepted})
	case errors.Is(err, recognition.ErrInvalidState):
		m.metrics.RecordStartAttempt("retry")
		m.dispatch(session.Event{Kind: session.EventStartRejectedRetryable, Err: err})
	default:
		m.metrics.RecordStartAttempt("fatal")
		m.metrics.RecordStartFailed("engine_rejected")
		m.logger.Error().Err(err).Int("attempt", attempt).Msg("Engine rejected start")
		m.dispatch(session.Event{Kind: session.EventStartRejectedFatal, Err: err})
	}
}

func (m *Manager) recordListening(listening bool) {
	if listening {
		m.listeningSince = time.Now()
		m.metrics.RecordListeningStarted()
		return
	}
	if !m.listeningSince.IsZero() {
		m.metrics.RecordListeningEnded(time.Since(m.listeningSince).Seconds())
		m.listeningSince = time.Time{}
	}
}

// engineCallback adapts engine callbacks to manager events.
type engineCallback struct {
	m *Manager
}

func (c engineCallback) OnStart() {
	c.m.dispatch(session.Event{Kind: session.EventStartSucceeded})
}

func (c engineCallback) OnEnd() {
	c.m.dispatch(session.Event{Kind: session.EventEngineEnded})
}

func (c engineCallback) OnError(kind recognition.ErrorKind, err error) {
	c.m.dispatch(session.Event{Kind: session.EventEngineError, ErrorKind: kind, Err: err})
}

func (c engineCallback) OnResult(resumeIndex int, results []recognition.Segment) {
	c.m.dispatch(session.Event{
		Kind:        session.EventEngineResult,
		ResumeIndex: resumeIndex,
		Results:     append([]recognition.Segment(nil), results...),
	})
}
