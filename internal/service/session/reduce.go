package session

import (
	"strings"
	"time"

	"interview-speech-service/internal/service/recognition"
)

// EventKind identifies an input to the state machine.
type EventKind int

const (
	EventStartRequested EventKind = iota
	EventStartAccepted
	EventStartSucceeded
	EventStartRejectedRetryable
	EventStartRejectedFatal
	EventRetryFired
	EventStopRequested
	EventStopRejected
	EventEngineResult
	EventEngineError
	EventEngineEnded
	EventClearRequested
	EventTakeRequested
	EventCloseRequested
)

var eventKindNames = [...]string{
	EventStartRequested:         "start_requested",
	EventStartAccepted:          "start_accepted",
	EventStartSucceeded:         "start_succeeded",
	EventStartRejectedRetryable: "start_rejected_retryable",
	EventStartRejectedFatal:     "start_rejected_fatal",
	EventRetryFired:             "retry_fired",
	EventStopRequested:          "stop_requested",
	EventStopRejected:           "stop_rejected",
	EventEngineResult:           "engine_result",
	EventEngineError:            "engine_error",
	EventEngineEnded:            "engine_ended",
	EventClearRequested:         "clear_requested",
	EventTakeRequested:          "take_requested",
	EventCloseRequested:         "close_requested",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event is an input to Reduce. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	MicrophoneEnabled bool
	ResumeIndex       int
	Results           []recognition.Segment
	ErrorKind         recognition.ErrorKind
	Err               error
}

// EffectKind identifies an action the caller of Reduce must carry out.
type EffectKind int

const (
	EffectStartEngine EffectKind = iota
	EffectStopEngine
	EffectScheduleRetry
	EffectCancelRetry
	EffectReleaseEngine
	EffectNotifyListening
	EffectNotifyAnswer
	EffectNotifyInterim
	EffectNotifySegment
	EffectNotifyError
	EffectNotifyStartFailed
	EffectAnswerTaken
)

// Effect is an output of Reduce.
type Effect struct {
	Kind EffectKind

	Delay     time.Duration
	Listening bool
	Text      string
	ErrorKind recognition.ErrorKind
	Err       error
	Attempts  int
}

// Reduce applies ev to s and returns the next snapshot and the effects to run,
// in order. It never mutates s.
func Reduce(s Snapshot, ev Event) (Snapshot, []Effect) {
	if s.Closed {
		return s, nil
	}
	if ev.Kind == EventCloseRequested {
		return reduceClose(s)
	}
	if !s.Supported {
		return s, nil
	}

	switch ev.Kind {
	case EventStartRequested:
		return reduceStartRequested(s, ev)
	case EventStartAccepted:
		if s.State == StateStarting {
			s.Awaiting = true
		}
		return s, nil
	case EventStartSucceeded:
		return reduceStartSucceeded(s)
	case EventStartRejectedRetryable:
		return reduceStartRejectedRetryable(s)
	case EventStartRejectedFatal:
		// The state is left as is; the engine's own error/end events reset it.
		s.Attempts = 0
		s.Awaiting = false
		return s, []Effect{{Kind: EffectNotifyError, ErrorKind: recognition.ErrorOther, Err: ev.Err}}
	case EventRetryFired:
		if !s.RetryPending {
			return s, nil
		}
		s.RetryPending = false
		s.State = StateStarting
		s.Attempts++
		return s, []Effect{{Kind: EffectStartEngine, Attempts: s.Attempts}}
	case EventStopRequested:
		if s.State != StateListening {
			return s, nil
		}
		s.State = StateStopping
		return s, []Effect{
			{Kind: EffectStopEngine},
			{Kind: EffectNotifyListening, Listening: false},
		}
	case EventStopRejected:
		if s.State != StateStopping {
			return s, nil
		}
		s.State = StateListening
		return s, []Effect{{Kind: EffectNotifyListening, Listening: true}}
	case EventEngineResult:
		return reduceResult(s, ev)
	case EventEngineError:
		kind := ev.ErrorKind
		s.LastError = &kind
		next, effects := reduceEnded(s)
		return next, append([]Effect{{Kind: EffectNotifyError, ErrorKind: kind, Err: ev.Err}}, effects...)
	case EventEngineEnded:
		return reduceEnded(s)
	case EventClearRequested:
		if s.Transcript.Len() == 0 {
			return s, nil
		}
		s.Transcript = Transcript{}
		return s, []Effect{{Kind: EffectNotifyAnswer, Text: ""}}
	case EventTakeRequested:
		answer := s.Transcript.String()
		effects := []Effect{{Kind: EffectAnswerTaken, Text: answer}}
		if s.Transcript.Len() > 0 {
			s.Transcript = Transcript{}
			effects = append(effects, Effect{Kind: EffectNotifyAnswer, Text: ""})
		}
		return s, effects
	}
	return s, nil
}

func reduceStartRequested(s Snapshot, ev Event) (Snapshot, []Effect) {
	if !ev.MicrophoneEnabled {
		return s, nil
	}
	// One start attempt at a time: a pending retry or an unacknowledged start
	// already covers this request.
	if s.State == StateListening || s.RetryPending || s.Awaiting {
		return s, nil
	}
	s.State = StateStarting
	s.Attempts = 1
	return s, []Effect{{Kind: EffectStartEngine, Attempts: 1}}
}

func reduceStartSucceeded(s Snapshot) (Snapshot, []Effect) {
	var effects []Effect
	if s.RetryPending {
		effects = append(effects, Effect{Kind: EffectCancelRetry})
	}
	wasListening := s.State == StateListening
	s.State = StateListening
	s.Attempts = 0
	s.RetryPending = false
	s.Awaiting = false
	if !wasListening {
		effects = append(effects, Effect{Kind: EffectNotifyListening, Listening: true})
	}
	return s, effects
}

func reduceStartRejectedRetryable(s Snapshot) (Snapshot, []Effect) {
	s.Awaiting = false
	if s.Retry.Allows(s.Attempts) {
		s.RetryPending = true
		return s, []Effect{{Kind: EffectScheduleRetry, Delay: s.Retry.Backoff(s.Attempts), Attempts: s.Attempts}}
	}
	attempts := s.Attempts
	s.Attempts = 0
	s.RetryPending = false
	s.State = StateIdle
	return s, []Effect{{Kind: EffectNotifyStartFailed, Attempts: attempts}}
}

// reduceResult folds results[resumeIndex:]. The finals of one batch are
// concatenated and appended as one segment after trimming surrounding
// whitespace, so engines that prefix finals with a space do not produce
// double spaces; whitespace-only finals are dropped. Interim text only
// replaces the preview.
func reduceResult(s Snapshot, ev Event) (Snapshot, []Effect) {
	start := ev.ResumeIndex
	if start < 0 {
		start = 0
	}
	if start > len(ev.Results) {
		start = len(ev.Results)
	}

	var final, interim strings.Builder
	for _, seg := range ev.Results[start:] {
		if seg.Final {
			final.WriteString(seg.Text)
		} else {
			interim.WriteString(seg.Text)
		}
	}

	var effects []Effect
	if text := strings.TrimSpace(final.String()); text != "" {
		s.Transcript = s.Transcript.Append(text)
		effects = append(effects,
			Effect{Kind: EffectNotifySegment, Text: text},
			Effect{Kind: EffectNotifyAnswer, Text: s.Transcript.String()},
		)
	}
	if preview := interim.String(); preview != s.Interim {
		s.Interim = preview
		effects = append(effects, Effect{Kind: EffectNotifyInterim, Text: preview})
	}
	return s, effects
}

func reduceEnded(s Snapshot) (Snapshot, []Effect) {
	var effects []Effect
	if s.State == StateListening {
		effects = append(effects, Effect{Kind: EffectNotifyListening, Listening: false})
	}
	s.State = StateIdle
	s.Awaiting = false
	if s.Interim != "" {
		s.Interim = ""
		effects = append(effects, Effect{Kind: EffectNotifyInterim, Text: ""})
	}
	return s, effects
}

func reduceClose(s Snapshot) (Snapshot, []Effect) {
	var effects []Effect
	if s.RetryPending {
		effects = append(effects, Effect{Kind: EffectCancelRetry})
	}
	if s.State == StateListening {
		effects = append(effects, Effect{Kind: EffectNotifyListening, Listening: false})
	}
	effects = append(effects, Effect{Kind: EffectReleaseEngine})
	s.State = StateIdle
	s.Closed = true
	s.RetryPending = false
	s.Awaiting = false
	s.Attempts = 0
	s.Interim = ""
	return s, effects
}
