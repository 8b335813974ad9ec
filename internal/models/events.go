// Package models defines the data structures for interview answer events.
package models

// Event types published by the service.
const (
	EventAnswerInterim    = "interview.answer.interim"
	EventAnswerSegment    = "interview.answer.segment"
	EventListeningStarted = "interview.session.listening_started"
	EventListeningStopped = "interview.session.listening_stopped"
	EventSessionError     = "interview.session.error"
	EventStartFailed      = "interview.session.start_failed"
	EventAnswerCleared    = "interview.answer.cleared"
)

// AnswerInterim carries the latest interim preview. It is never part of the answer.
type AnswerInterim struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	ManagerID string `json:"managerId"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// AnswerSegment carries one finalized segment and the answer it extended.
type AnswerSegment struct {
	EventID      string `json:"eventId"`
	EventType    string `json:"eventType"`
	ManagerID    string `json:"managerId"`
	SessionID    string `json:"sessionId"`
	Timestamp    int64  `json:"timestamp"`
	SegmentIndex int    `json:"segmentIndex"`
	Text         string `json:"text"`
	Answer       string `json:"answer"`
}

// SessionEvent reports listening lifecycle changes and failures.
type SessionEvent struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	ManagerID string `json:"managerId"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"`
	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
}
