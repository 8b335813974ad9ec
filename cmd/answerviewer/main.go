// Command answerviewer tails the answer and session topics and prints each
// event as it arrives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"interview-speech-service/internal/config"
	"interview-speech-service/internal/events"
	"interview-speech-service/internal/models"
	"interview-speech-service/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma-separated)")
	topicFinal := flag.String("topic-final", cfg.Kafka.TopicFinal, "Final segment topic")
	topicSession := flag.String("topic-session", cfg.Kafka.TopicSession, "Session lifecycle topic")
	topicInterim := flag.String("topic-interim", "", "Interim topic (empty to skip)")
	lookback := flag.Duration("lookback", time.Hour, "How far back to start reading")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	topics := []string{*topicFinal, *topicSession}
	if *topicInterim != "" {
		topics = append(topics, *topicInterim)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		c := events.NewConsumer(gctx, events.ConsumerConfig{
			Brokers:  strings.Split(*brokers, ","),
			Topic:    topic,
			Lookback: *lookback,
		})
		g.Go(func() error {
			return c.Run(gctx, printEvent)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Viewer exited with error")
		os.Exit(1)
	}
}

func printEvent(ev any) {
	switch e := ev.(type) {
	case *models.AnswerInterim:
		log.Info().Str("session", e.SessionID).Msgf("… %s", truncate(e.Text, 60))
	case *models.AnswerSegment:
		log.Info().
			Str("session", e.SessionID).
			Int("segment", e.SegmentIndex).
			Str("answer", truncate(e.Answer, 80)).
			Msg(e.Text)
	case *models.SessionEvent:
		l := log.Info().Str("manager", e.ManagerID).Str("session", e.SessionID)
		if e.ErrorKind != "" {
			l = l.Str("errorKind", e.ErrorKind).Str("error", e.Error)
		}
		if e.Attempts > 0 {
			l = l.Int("attempts", e.Attempts)
		}
		l.Msg(e.EventType)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
