// Package recognition defines the boundary to a continuous speech-recognition engine.
package recognition

import (
	"context"
	"errors"
	"fmt"
)

// Errors returned by engines and factories.
var (
	// ErrInvalidState is returned by Engine.Start when the previous session
	// has not finished tearing down. Callers may retry the start later.
	ErrInvalidState = errors.New("recognition engine is still shutting down")
	// ErrUnsupported is returned by a Factory when no engine is available.
	ErrUnsupported = errors.New("speech recognition is not supported")
	// ErrClosed is returned by engines after Abort.
	ErrClosed = errors.New("recognition engine is closed")
)

// Segment is one unit of recognized speech.
type Segment struct {
	Text       string
	Final      bool
	Confidence float64
}

// Callback receives engine lifecycle events. Engines must deliver events for
// a single engine instance in the order they occur.
type Callback interface {
	// OnStart is called once the engine has started capturing audio.
	OnStart()

	// OnEnd is called when the engine stops, for whatever reason.
	OnEnd()

	// OnError is called when the engine fails. OnEnd normally follows.
	OnError(kind ErrorKind, err error)

	// OnResult delivers results; only results[resumeIndex:] changed since the
	// previous call.
	OnResult(resumeIndex int, results []Segment)
}

// Engine is a host speech-recognition engine. One instance is reused across
// start/stop cycles.
type Engine interface {
	// Start begins a recognition session. It returns ErrInvalidState if the
	// previous session is still tearing down.
	Start() error

	// Stop asks the engine to finish the current session. OnEnd follows
	// asynchronously.
	Stop() error

	// Abort cancels any session and releases the engine.
	Abort() error
}

// Config configures an engine instance.
type Config struct {
	Continuous      bool
	InterimResults  bool
	Locale          string
	MaxAlternatives int
}

// DefaultConfig returns the configuration used for interview answers.
func DefaultConfig() Config {
	return Config{
		Continuous:      true,
		InterimResults:  true,
		Locale:          "ko-KR",
		MaxAlternatives: 1,
	}
}

// Factory probes the environment and constructs an engine bound to cb.
// It returns ErrUnsupported when no engine is available.
type Factory func(ctx context.Context, cfg Config, cb Callback) (Engine, error)

// Unsupported is a Factory for environments without a recognition engine.
func Unsupported(context.Context, Config, Callback) (Engine, error) {
	return nil, ErrUnsupported
}

// ErrorKind classifies engine runtime errors.
type ErrorKind int

const (
	ErrorOther ErrorKind = iota
	ErrorNoSpeech
	ErrorAborted
	ErrorAudioCapture
	ErrorNetwork
	ErrorNotAllowed
	ErrorServiceNotAllowed
	ErrorLanguageNotSupported
)

var errorKindNames = map[ErrorKind]string{
	ErrorOther:                "other",
	ErrorNoSpeech:             "no-speech",
	ErrorAborted:              "aborted",
	ErrorAudioCapture:         "audio-capture",
	ErrorNetwork:              "network",
	ErrorNotAllowed:           "not-allowed",
	ErrorServiceNotAllowed:    "service-not-allowed",
	ErrorLanguageNotSupported: "language-not-supported",
}

// String returns the wire name of the error kind.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseErrorKind maps a wire name to an ErrorKind. Unknown names map to ErrorOther.
func ParseErrorKind(name string) ErrorKind {
	for kind, n := range errorKindNames {
		if n == name {
			return kind
		}
	}
	return ErrorOther
}
