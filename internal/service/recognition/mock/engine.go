// Package mock provides a simulated recognition engine for running without
// cloud credentials or a microphone.
// It replays scripted utterances as interim results followed by one final
// result each, and models the teardown window after a stop during which a new
// start is rejected.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-speech-service/internal/observability/logging"
	"interview-speech-service/internal/service/recognition"
)

// Utterance is a scripted utterance with progressive interim transcripts.
type Utterance struct {
	Partials   []string
	Final      string
	Confidence float64
	// Error, when set, is an error kind name such as "no-speech"; the
	// session fails with it instead of delivering Final.
	Error string
}

// DefaultUtterances are sample interview answers.
var DefaultUtterances = []Utterance{
	{
		Partials:   []string{"안녕하세요", "안녕하세요 저는"},
		Final:      "안녕하세요 저는 백엔드 개발자입니다",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"지난 프로젝트에서", "지난 프로젝트에서 결제 시스템을"},
		Final:      "지난 프로젝트에서 결제 시스템을 설계했습니다",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"가장 어려웠던 점은"},
		Final:      "가장 어려웠던 점은 장애 대응이었습니다",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"감사합니다"},
		Final:      "감사합니다",
		Confidence: 0.98,
	},
}

// Config controls pacing of the simulation.
type Config struct {
	Utterances      []Utterance
	StartDelay      time.Duration // before OnStart
	PartialInterval time.Duration // between interim results
	FinalDelay      time.Duration // after the last interim, before the final
	TeardownWindow  time.Duration // after stop, before OnEnd; Start is rejected meanwhile
	Loop            bool          // restart the script when exhausted
}

// DefaultConfig returns pacing close to a live recognizer.
func DefaultConfig() Config {
	return Config{
		Utterances:      DefaultUtterances,
		StartDelay:      50 * time.Millisecond,
		PartialInterval: 300 * time.Millisecond,
		FinalDelay:      400 * time.Millisecond,
		TeardownWindow:  150 * time.Millisecond,
	}
}

type engineState int

const (
	stateIdle engineState = iota
	stateRunning
	stateDraining
	stateClosed
)

type failure struct {
	kind recognition.ErrorKind
	err  error
}

// Engine implements recognition.Engine with scripted results.
type Engine struct {
	cfg    Config
	rcfg   recognition.Config
	cb     recognition.Callback
	logger zerolog.Logger

	mu       sync.Mutex
	state    engineState
	cancel   context.CancelFunc
	failures chan failure
	cursor   int
	sessions int
}

// New creates a mock engine that reports to cb.
func New(cfg Config, rcfg recognition.Config, cb recognition.Callback) *Engine {
	return &Engine{
		cfg:    cfg,
		rcfg:   rcfg,
		cb:     cb,
		logger: logging.WithEngine("mock", rcfg.Locale),
	}
}

// Factory returns a recognition.Factory that builds mock engines.
func Factory(cfg Config) recognition.Factory {
	return func(_ context.Context, rcfg recognition.Config, cb recognition.Callback) (recognition.Engine, error) {
		return New(cfg, rcfg, cb), nil
	}
}

// Start begins a simulated session. It returns recognition.ErrInvalidState
// while a session is running or tearing down.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateClosed:
		return recognition.ErrClosed
	case stateRunning, stateDraining:
		return recognition.ErrInvalidState
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.failures = make(chan failure, 1)
	e.state = stateRunning
	e.sessions++

	e.logger.Debug().Int("session", e.sessions).Msg("Mock recognition started")
	go e.run(ctx, e.failures)
	return nil
}

// Stop ends the running session. OnEnd follows after the teardown window.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateRunning {
		return nil
	}
	e.state = stateDraining
	e.cancel()
	return nil
}

// Abort cancels any session and rejects all later starts.
func (e *Engine) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	e.state = stateClosed
	return nil
}

// Fail injects a runtime error into the running session. The session then
// ends as if the engine had failed. It reports false if nothing is running.
func (e *Engine) Fail(kind recognition.ErrorKind, err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateRunning {
		return false
	}
	select {
	case e.failures <- failure{kind: kind, err: err}:
		return true
	default:
		return false
	}
}

// Sessions returns the number of sessions started.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions
}

func (e *Engine) run(ctx context.Context, failures <-chan failure) {
	defer e.finish()

	if !e.wait(ctx, failures, e.cfg.StartDelay) {
		return
	}
	e.cb.OnStart()

	var finals []recognition.Segment
	for {
		utt, ok := e.nextUtterance()
		if !ok {
			e.wait(ctx, failures, -1)
			return
		}

		for _, partial := range utt.Partials {
			if !e.wait(ctx, failures, e.cfg.PartialInterval) {
				return
			}
			if e.rcfg.InterimResults {
				results := append(append([]recognition.Segment(nil), finals...), recognition.Segment{Text: partial})
				e.cb.OnResult(len(finals), results)
			}
		}

		if !e.wait(ctx, failures, e.cfg.FinalDelay) {
			return
		}
		if utt.Error != "" {
			e.fail(failure{
				kind: recognition.ParseErrorKind(utt.Error),
				err:  fmt.Errorf("scripted %s", utt.Error),
			})
			return
		}
		finals = append(finals, recognition.Segment{Text: utt.Final, Final: true, Confidence: utt.Confidence})
		e.cb.OnResult(len(finals)-1, append([]recognition.Segment(nil), finals...))

		if !e.rcfg.Continuous {
			return
		}
	}
}

// wait sleeps for d, or until ctx is done when d is negative. It reports
// false if the session ended meanwhile, delivering an injected failure.
func (e *Engine) wait(ctx context.Context, failures <-chan failure, d time.Duration) bool {
	var timeout <-chan time.Time
	if d >= 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-ctx.Done():
		return false
	case f := <-failures:
		e.fail(f)
		return false
	case <-timeout:
		return true
	}
}

func (e *Engine) fail(f failure) {
	e.mu.Lock()
	if e.state == stateRunning {
		e.state = stateDraining
	}
	e.mu.Unlock()
	e.logger.Debug().Str("errorKind", f.kind.String()).Msg("Mock recognition failed")
	e.cb.OnError(f.kind, f.err)
}

func (e *Engine) nextUtterance() (Utterance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.cfg.Utterances) == 0 {
		return Utterance{}, false
	}
	if e.cursor >= len(e.cfg.Utterances) {
		if !e.cfg.Loop {
			return Utterance{}, false
		}
		e.cursor = 0
	}
	utt := e.cfg.Utterances[e.cursor]
	e.cursor++
	return utt, true
}

// finish runs the teardown window and reports the end of the session.
func (e *Engine) finish() {
	e.mu.Lock()
	if e.state == stateRunning {
		e.state = stateDraining
	}
	e.mu.Unlock()

	if e.cfg.TeardownWindow > 0 {
		time.Sleep(e.cfg.TeardownWindow)
	}

	e.mu.Lock()
	if e.state == stateDraining {
		e.state = stateIdle
	}
	e.mu.Unlock()

	e.logger.Debug().Msg("Mock recognition ended")
	e.cb.OnEnd()
}
