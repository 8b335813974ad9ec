// Package session holds the speech session state machine.
package session

import (
	"fmt"
	"strings"
	"time"

	"interview-speech-service/internal/service/recognition"
)

// State represents the lifecycle state of the recognition session.
type State int

const (
	// StateIdle - no session; the engine is stopped.
	StateIdle State = iota
	// StateStarting - a start was issued and is waiting for the engine.
	StateStarting
	// StateListening - the engine confirmed the start and is capturing.
	StateListening
	// StateStopping - a stop was issued; the engine has not ended yet.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateListening:
		return "LISTENING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Transcript is the ordered sequence of finalized segments.
// The zero value is an empty transcript.
type Transcript struct {
	parts []string
}

// Append returns a transcript with text added. The receiver is not modified.
func (t Transcript) Append(text string) Transcript {
	next := make([]string, len(t.parts), len(t.parts)+1)
	copy(next, t.parts)
	return Transcript{parts: append(next, text)}
}

// Len returns the number of finalized segments.
func (t Transcript) Len() int {
	return len(t.parts)
}

// segments returns a copy of the finalized segments.
func (t Transcript) segments() []string {
	return append([]string(nil), t.parts...)
}

// String joins the segments with a single space.
func (t Transcript) String() string {
	return strings.Join(t.parts, " ")
}

// RetryPolicy controls retries of starts rejected with ErrInvalidState.
type RetryPolicy struct {
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// MaxAttempts bounds the total number of start attempts. Zero retries forever.
	MaxAttempts int
}

// DefaultRetryPolicy retries every 100ms without a bound.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delay:      100 * time.Millisecond,
		Multiplier: 1,
	}
}

// Allows reports whether another attempt may follow the given number of attempts.
func (p RetryPolicy) Allows(attempts int) bool {
	return p.MaxAttempts <= 0 || attempts < p.MaxAttempts
}

// Backoff returns the delay before the attempt that follows attempts.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	delay := p.Delay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	if p.Multiplier > 1 {
		for i := 1; i < attempts; i++ {
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Snapshot is the complete manager state at one point in time.
type Snapshot struct {
	State      State
	Supported  bool
	Closed     bool
	Transcript Transcript
	Interim    string
	Retry      RetryPolicy

	// Attempts counts start attempts of the current start request.
	Attempts int
	// RetryPending is set while a retry is scheduled.
	RetryPending bool
	// Awaiting is set while the engine accepted a start but has not confirmed it.
	Awaiting bool
	// LastError is the kind of the last engine error, if any.
	LastError *recognition.ErrorKind
}

// NewSnapshot returns the initial snapshot for a manager.
func NewSnapshot(supported bool, retry RetryPolicy) Snapshot {
	return Snapshot{
		State:     StateIdle,
		Supported: supported,
		Retry:     retry,
	}
}

// IsListening is true iff the state is StateListening.
func (s Snapshot) IsListening() bool {
	return s.State == StateListening
}

// Answer returns the current answer.
func (s Snapshot) Answer() string {
	return s.Transcript.String()
}
