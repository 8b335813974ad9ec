package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"interview-speech-service/internal/models"
	"interview-speech-service/internal/observability/logging"
)

var (
	// ErrNoEventType is returned for messages without an eventType header.
	ErrNoEventType = errors.New("message has no eventType header")
	// ErrUnknownEventType is returned for eventType headers this service never writes.
	ErrUnknownEventType = errors.New("unknown event type")
)

// Decode turns a published message back into its model, selected by the
// eventType header written by Publisher.
func Decode(msg kafka.Message) (any, error) {
	var eventType string
	for _, h := range msg.Headers {
		if h.Key == "eventType" {
			eventType = string(h.Value)
			break
		}
	}

	var v any
	switch eventType {
	case "":
		return nil, ErrNoEventType
	case "interim":
		v = &models.AnswerInterim{}
	case "final":
		v = &models.AnswerSegment{}
	case "session":
		v = &models.SessionEvent{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	if err := json.Unmarshal(msg.Value, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return v, nil
}

// messageReader is the subset of kafka.Reader used by Consumer.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ConsumerConfig selects the topic and starting point of a Consumer.
type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	Lookback time.Duration
}

// Consumer reads one topic's partition 0 without a consumer group.
type Consumer struct {
	reader  messageReader
	topic   string
	backoff time.Duration
	logger  zerolog.Logger
}

// NewConsumer opens a reader positioned Lookback before now.
func NewConsumer(ctx context.Context, cfg ConsumerConfig) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	logger := logging.WithComponent("kafka-consumer").With().Str("topic", cfg.Topic).Logger()
	if cfg.Lookback > 0 {
		if err := reader.SetOffsetAt(ctx, time.Now().Add(-cfg.Lookback)); err != nil {
			logger.Warn().Err(err).Msg("Failed to seek, reading from the start offset")
		}
	}
	return newConsumer(reader, cfg.Topic, logger)
}

func newConsumer(r messageReader, topic string, logger zerolog.Logger) *Consumer {
	return &Consumer{reader: r, topic: topic, backoff: time.Second, logger: logger}
}

// Run decodes messages and passes them to handle until ctx is done.
// Read errors are retried after a pause; undecodable messages are skipped.
func (c *Consumer) Run(ctx context.Context, handle func(any)) error {
	defer c.reader.Close()
	c.logger.Info().Msg("Consuming answer events")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn().Err(err).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		ev, err := Decode(msg)
		if err != nil {
			c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping message")
			continue
		}
		handle(ev)
	}
}
