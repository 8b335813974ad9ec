// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables take precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Recognition   RecognitionConfig   `yaml:"recognition"`
	Google        GoogleConfig        `yaml:"google"`
	Audio         AudioConfig         `yaml:"audio"`
	Retry         RetryConfig         `yaml:"retry"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig holds service identity and listener ports.
type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	GRPCPort    string `yaml:"grpcPort"`
	HTTPPort    string `yaml:"httpPort"`
	MetricsPort string `yaml:"metricsPort"`
}

// RecognitionConfig selects and configures the recognition engine.
type RecognitionConfig struct {
	Engine          string `yaml:"engine"` // mock, google, none
	Locale          string `yaml:"locale"`
	Continuous      bool   `yaml:"continuous"`
	InterimResults  bool   `yaml:"interimResults"`
	MaxAlternatives int    `yaml:"maxAlternatives"`
}

// GoogleConfig holds Google Cloud Speech stream settings.
type GoogleConfig struct {
	SampleRateHz      int           `yaml:"sampleRateHz"`
	AudioEncoding     string        `yaml:"audioEncoding"`
	Model             string        `yaml:"model"`
	DrainTimeout      time.Duration `yaml:"drainTimeout"`
	MaxStreamDuration time.Duration `yaml:"maxStreamDuration"`
}

// AudioConfig holds capture source settings for the google engine.
type AudioConfig struct {
	Source      string `yaml:"source"` // ffmpeg, wav
	WAVPath     string `yaml:"wavPath"`
	Command     string `yaml:"command"`
	InputFormat string `yaml:"inputFormat"`
	InputDevice string `yaml:"inputDevice"`
	SampleRate  int    `yaml:"sampleRate"`
	Channels    int    `yaml:"channels"`
	ChunkSize   int    `yaml:"chunkSize"`
}

// RetryConfig controls retries of starts rejected while the engine shuts down.
type RetryConfig struct {
	Delay       time.Duration `yaml:"delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
	MaxAttempts int           `yaml:"maxAttempts"` // 0 retries forever
}

// KafkaConfig holds event publisher settings.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicInterim string   `yaml:"topicInterim"`
	TopicFinal   string   `yaml:"topicFinal"`
	TopicSession string   `yaml:"topicSession"`
	Principal    string   `yaml:"principal"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:   "svc-interview-speech",
			GRPCPort:    "50051",
			HTTPPort:    "8080",
			MetricsPort: "9090",
		},
		Recognition: RecognitionConfig{
			Engine:          "mock",
			Locale:          "ko-KR",
			Continuous:      true,
			InterimResults:  true,
			MaxAlternatives: 1,
		},
		Google: GoogleConfig{
			SampleRateHz:      16000,
			AudioEncoding:     "LINEAR16",
			DrainTimeout:      2 * time.Second,
			MaxStreamDuration: 290 * time.Second,
		},
		Audio: AudioConfig{
			Source:      "ffmpeg",
			Command:     "ffmpeg",
			InputFormat: "pulse",
			InputDevice: "default",
			SampleRate:  16000,
			Channels:    1,
			ChunkSize:   3200,
		},
		Retry: RetryConfig{
			Delay:      100 * time.Millisecond,
			Multiplier: 1,
		},
		Kafka: KafkaConfig{
			TopicInterim: "interview.answer.interim",
			TopicFinal:   "interview.answer.final",
			TopicSession: "interview.session",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads CONFIG_FILE when set, then applies environment overrides.
// A file that cannot be read or parsed is logged and ignored.
func Load() *Config {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring config file")
		}
	}

	cfg.applyEnv()
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fromFile := *c
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return err
	}
	*c = fromFile
	return nil
}

func (c *Config) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)
	c.Service.HTTPPort = envOrDefault("HTTP_PORT", c.Service.HTTPPort)
	c.Service.MetricsPort = envOrDefault("METRICS_PORT", c.Service.MetricsPort)

	c.Recognition.Engine = envOrDefault("RECOGNITION_ENGINE", c.Recognition.Engine)
	c.Recognition.Locale = envOrDefault("RECOGNITION_LOCALE", c.Recognition.Locale)
	c.Recognition.Continuous = envOrDefaultBool("RECOGNITION_CONTINUOUS", c.Recognition.Continuous)
	c.Recognition.InterimResults = envOrDefaultBool("RECOGNITION_INTERIM_RESULTS", c.Recognition.InterimResults)
	c.Recognition.MaxAlternatives = envOrDefaultInt("RECOGNITION_MAX_ALTERNATIVES", c.Recognition.MaxAlternatives)

	c.Google.SampleRateHz = envOrDefaultInt("GOOGLE_SAMPLE_RATE_HZ", c.Google.SampleRateHz)
	c.Google.AudioEncoding = envOrDefault("GOOGLE_AUDIO_ENCODING", c.Google.AudioEncoding)
	c.Google.Model = envOrDefault("GOOGLE_MODEL", c.Google.Model)
	c.Google.DrainTimeout = envOrDefaultDuration("GOOGLE_DRAIN_TIMEOUT", c.Google.DrainTimeout)
	c.Google.MaxStreamDuration = envOrDefaultDuration("GOOGLE_MAX_STREAM_DURATION", c.Google.MaxStreamDuration)

	c.Audio.Source = envOrDefault("AUDIO_SOURCE", c.Audio.Source)
	c.Audio.WAVPath = envOrDefault("AUDIO_WAV_PATH", c.Audio.WAVPath)
	c.Audio.Command = envOrDefault("AUDIO_FFMPEG_COMMAND", c.Audio.Command)
	c.Audio.InputFormat = envOrDefault("AUDIO_INPUT_FORMAT", c.Audio.InputFormat)
	c.Audio.InputDevice = envOrDefault("AUDIO_INPUT_DEVICE", c.Audio.InputDevice)
	c.Audio.SampleRate = envOrDefaultInt("AUDIO_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.Channels = envOrDefaultInt("AUDIO_CHANNELS", c.Audio.Channels)
	c.Audio.ChunkSize = envOrDefaultInt("AUDIO_CHUNK_SIZE", c.Audio.ChunkSize)

	c.Retry.Delay = envOrDefaultDuration("RETRY_DELAY", c.Retry.Delay)
	c.Retry.Multiplier = envOrDefaultFloat("RETRY_MULTIPLIER", c.Retry.Multiplier)
	c.Retry.MaxDelay = envOrDefaultDuration("RETRY_MAX_DELAY", c.Retry.MaxDelay)
	c.Retry.MaxAttempts = envOrDefaultInt("RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.TopicInterim = envOrDefault("KAFKA_TOPIC_INTERIM", c.Kafka.TopicInterim)
	c.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", c.Kafka.TopicFinal)
	c.Kafka.TopicSession = envOrDefault("KAFKA_TOPIC_SESSION", c.Kafka.TopicSession)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
