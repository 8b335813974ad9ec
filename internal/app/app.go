package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"interview-speech-service/internal/config"
	"interview-speech-service/internal/events"
	"interview-speech-service/internal/observability/logging"
	"interview-speech-service/internal/observability/metrics"
	"interview-speech-service/internal/service/audio"
	"interview-speech-service/internal/service/recognition"
	"interview-speech-service/internal/service/recognition/google"
	"interview-speech-service/internal/service/recognition/mock"
	"interview-speech-service/internal/service/session"
	"interview-speech-service/internal/service/speech"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Publisher   *events.Publisher
	Observer    *events.SessionObserver
	Manager     *speech.Manager
}

// New constructs an Application, choosing the recognition engine from cfg.
// Extra observers receive manager changes alongside the event publisher.
func New(ctx context.Context, cfg *config.Config, observers ...speech.Observer) (*Application, error) {
	setupLogger(cfg)

	factory, err := EngineFactory(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithFactory(ctx, cfg, factory, observers...), nil
}

// NewWithFactory constructs an Application around factory. The global logger
// is left as configured by the caller.
func NewWithFactory(ctx context.Context, cfg *config.Config, factory recognition.Factory, observers ...speech.Observer) *Application {
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicInterim: cfg.Kafka.TopicInterim,
		TopicFinal:   cfg.Kafka.TopicFinal,
		TopicSession: cfg.Kafka.TopicSession,
		Principal:    cfg.Kafka.Principal,
	})

	managerID := uuid.NewString()
	a.Observer = events.NewSessionObserver(a.Publisher, managerID)
	a.Manager = speech.NewManager(ctx, factory,
		speech.WithID(managerID),
		speech.WithEngineConfig(EngineConfig(cfg)),
		speech.WithRetryPolicy(RetryPolicy(cfg)),
		speech.WithObservers(append([]speech.Observer{a.Observer}, observers...)...),
		speech.WithMetrics(metrics.DefaultMetrics),
	)

	a.Logger.Info().
		Str("managerId", managerID).
		Str("engine", cfg.Recognition.Engine).
		Bool("supported", a.Manager.SpeechSupported()).
		Msg("Interview speech service application created")
	return a
}

func setupLogger(cfg *config.Config) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	if cfg.Observability.LogFormat != "" {
		logCfg.Format = cfg.Observability.LogFormat
	}
	logging.Init(logCfg)
}

// EngineConfig maps recognition settings to the engine configuration.
func EngineConfig(cfg *config.Config) recognition.Config {
	return recognition.Config{
		Continuous:      cfg.Recognition.Continuous,
		InterimResults:  cfg.Recognition.InterimResults,
		Locale:          cfg.Recognition.Locale,
		MaxAlternatives: cfg.Recognition.MaxAlternatives,
	}
}

// RetryPolicy maps retry settings to the session retry policy.
func RetryPolicy(cfg *config.Config) session.RetryPolicy {
	return session.RetryPolicy{
		Delay:       cfg.Retry.Delay,
		Multiplier:  cfg.Retry.Multiplier,
		MaxDelay:    cfg.Retry.MaxDelay,
		MaxAttempts: cfg.Retry.MaxAttempts,
	}
}

// EngineFactory returns the recognition factory named by cfg.Recognition.Engine.
func EngineFactory(cfg *config.Config) (recognition.Factory, error) {
	switch cfg.Recognition.Engine {
	case "mock", "":
		mockCfg := mock.DefaultConfig()
		mockCfg.Loop = true
		return mock.Factory(mockCfg), nil
	case "google":
		src, err := audio.NewSource(audio.Config{
			Source:      cfg.Audio.Source,
			WAVPath:     cfg.Audio.WAVPath,
			Command:     cfg.Audio.Command,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			ChunkSize:   cfg.Audio.ChunkSize,
		})
		if err != nil {
			return nil, err
		}
		return google.Factory(google.Config{
			SampleRateHz:      int32(cfg.Google.SampleRateHz),
			AudioEncoding:     cfg.Google.AudioEncoding,
			Model:             cfg.Google.Model,
			Punctuation:       true,
			ChunkSize:         cfg.Audio.ChunkSize,
			DrainTimeout:      cfg.Google.DrainTimeout,
			MaxStreamDuration: cfg.Google.MaxStreamDuration,
		}, src), nil
	case "none":
		return recognition.Unsupported, nil
	default:
		return nil, fmt.Errorf("unknown recognition engine %q", cfg.Recognition.Engine)
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Str("method", "Start").
		Time("startupTime", a.StartupTime).
		Msg("Interview speech service starting")
	return nil
}

// Ready reports whether the service can take requests.
func (a *Application) Ready() bool {
	return !a.StartupTime.IsZero()
}

// Shutdown releases the engine, drains queued events and closes the publisher.
func (a *Application) Shutdown() {
	a.Logger.Info().Str("method", "Shutdown").Msg("Interview speech service shutting down")
	a.Manager.Close()
	a.Observer.Close()
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Publisher close failed")
	}
}
