package speech

import (
	"time"

	"interview-speech-service/internal/service/recognition"
)

// Observer receives manager state changes. Calls are made from a single
// goroutine in the order the changes happened. Observers must not call
// Close from a callback.
type Observer interface {
	// ListeningChanged is called when IsListening flips.
	ListeningChanged(listening bool)

	// AnswerChanged is called with the new current answer.
	AnswerChanged(answer string)

	// InterimChanged is called with the latest interim preview.
	InterimChanged(text string)

	// SegmentFinalized is called with the text appended to the answer.
	SegmentFinalized(text string)

	// SessionError is called for engine errors and rejected starts.
	SessionError(kind recognition.ErrorKind, err error)

	// StartFailed is called when a bounded retry policy gives up.
	StartFailed(attempts int)
}

// NopObserver implements Observer with no-ops. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) ListeningChanged(bool)                      {}
func (NopObserver) AnswerChanged(string)                       {}
func (NopObserver) InterimChanged(string)                      {}
func (NopObserver) SegmentFinalized(string)                    {}
func (NopObserver) SessionError(recognition.ErrorKind, error) {}
func (NopObserver) StartFailed(int)                            {}

// Timer is a scheduled retry.
type Timer interface {
	Stop() bool
}

// Scheduler schedules delayed retries.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
