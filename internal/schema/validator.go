// Package schema validates events before they are published.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"interview-speech-service/internal/models"
)

var (
	// ErrMissingField is returned when a required event field is empty.
	ErrMissingField = errors.New("missing required field")
	// ErrUnknownEvent is returned for values that are not event models.
	ErrUnknownEvent = errors.New("unknown event")
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields of an event model.
func (v *Validator) Validate(event any) error {
	var fields []field
	switch e := event.(type) {
	case models.AnswerInterim:
		fields = []field{{"eventId", e.EventID}, {"eventType", e.EventType}, {"managerId", e.ManagerID}, {"sessionId", e.SessionID}}
	case *models.AnswerInterim:
		return v.Validate(*e)
	case models.AnswerSegment:
		fields = []field{{"eventId", e.EventID}, {"eventType", e.EventType}, {"managerId", e.ManagerID}, {"sessionId", e.SessionID}, {"text", e.Text}}
	case *models.AnswerSegment:
		return v.Validate(*e)
	case models.SessionEvent:
		fields = []field{{"eventId", e.EventID}, {"eventType", e.EventType}, {"managerId", e.ManagerID}}
	case *models.SessionEvent:
		return v.Validate(*e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}

	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	log.Debug().Str("eventType", fields[1].value).Msg("Event validated")
	return nil
}

type field struct {
	name  string
	value string
}
