// Package google provides a recognition engine backed by Google Cloud
// Speech-to-Text streaming recognition.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"interview-speech-service/internal/observability/logging"
	"interview-speech-service/internal/service/audio"
	"interview-speech-service/internal/service/recognition"
)

// Config holds Google-specific stream settings.
type Config struct {
	SampleRateHz      int32
	AudioEncoding     string
	Model             string
	Punctuation       bool
	ChunkSize         int
	DrainTimeout      time.Duration // after Stop, before the stream is cancelled
	MaxStreamDuration time.Duration // streams are stopped before Google's limit
}

// DefaultConfig returns sensible defaults for microphone capture.
func DefaultConfig() Config {
	return Config{
		SampleRateHz:      16000,
		AudioEncoding:     "LINEAR16",
		Punctuation:       true,
		ChunkSize:         3200,
		DrainTimeout:      2 * time.Second,
		MaxStreamDuration: 290 * time.Second,
	}
}

// parseAudioEncoding converts a string to the speechpb encoding enum.
// Unknown values fall back to LINEAR16.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// classify maps a stream error to a recognition error kind.
func classify(err error) recognition.ErrorKind {
	if errors.Is(err, context.Canceled) {
		return recognition.ErrorAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return recognition.ErrorNetwork
	}
	st, ok := status.FromError(err)
	if !ok {
		return recognition.ErrorOther
	}
	switch st.Code() {
	case codes.Canceled:
		return recognition.ErrorAborted
	case codes.Unavailable, codes.DeadlineExceeded:
		return recognition.ErrorNetwork
	case codes.OutOfRange:
		// Returned when no audio arrives for too long.
		return recognition.ErrorNoSpeech
	case codes.Unauthenticated:
		return recognition.ErrorNotAllowed
	case codes.PermissionDenied, codes.ResourceExhausted:
		return recognition.ErrorServiceNotAllowed
	default:
		return recognition.ErrorOther
	}
}

// StreamOpener opens a streaming recognition call.
type StreamOpener func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)

type engineState int

const (
	stateIdle engineState = iota
	stateRunning
	stateDraining
	stateClosed
)

// Engine implements recognition.Engine over one streaming call per session.
type Engine struct {
	open   StreamOpener
	source audio.Source
	cfg    Config
	rcfg   recognition.Config
	cb     recognition.Callback
	logger zerolog.Logger
	closer io.Closer

	mu            sync.Mutex
	state         engineState
	cancelCapture context.CancelFunc
	cancelStream  context.CancelFunc
	drainTimer    *time.Timer
}

// NewEngine creates an engine that opens streams with open and reads audio from source.
func NewEngine(open StreamOpener, source audio.Source, cfg Config, rcfg recognition.Config, cb recognition.Callback) *Engine {
	return &Engine{
		open:   open,
		source: source,
		cfg:    cfg,
		rcfg:   rcfg,
		cb:     cb,
		logger: logging.WithEngine("google", rcfg.Locale),
	}
}

// Factory returns a recognition.Factory that dials Google Cloud Speech.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func Factory(cfg Config, source audio.Source) recognition.Factory {
	return func(ctx context.Context, rcfg recognition.Config, cb recognition.Callback) (recognition.Engine, error) {
		client, err := speech.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create speech client: %w", err)
		}
		open := func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
			return client.StreamingRecognize(ctx)
		}
		e := NewEngine(open, source, cfg, rcfg, cb)
		e.closer = client
		return e, nil
	}
}

// Start opens a new stream. It returns recognition.ErrInvalidState while the
// previous stream is still draining.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateClosed:
		return recognition.ErrClosed
	case stateRunning, stateDraining:
		return recognition.ErrInvalidState
	}

	var (
		streamCtx, captureCtx       context.Context
		cancelStream, cancelCapture context.CancelFunc
	)
	if e.cfg.MaxStreamDuration > 0 {
		streamCtx, cancelStream = context.WithTimeout(context.Background(), e.cfg.MaxStreamDuration+e.cfg.DrainTimeout)
		captureCtx, cancelCapture = context.WithTimeout(streamCtx, e.cfg.MaxStreamDuration)
	} else {
		streamCtx, cancelStream = context.WithCancel(context.Background())
		captureCtx, cancelCapture = context.WithCancel(streamCtx)
	}

	e.cancelStream = cancelStream
	e.cancelCapture = cancelCapture
	e.state = stateRunning

	go e.run(streamCtx, captureCtx)
	return nil
}

// Stop stops sending audio and lets Google return the remaining results.
// The stream is cancelled if it has not ended after the drain timeout.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateRunning {
		return nil
	}
	e.state = stateDraining
	e.cancelCapture()
	if e.cfg.DrainTimeout > 0 {
		e.drainTimer = time.AfterFunc(e.cfg.DrainTimeout, e.cancelStream)
	}
	return nil
}

// Abort cancels the stream and closes the client.
func (e *Engine) Abort() error {
	e.mu.Lock()
	if e.state == stateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = stateClosed
	if e.cancelStream != nil {
		e.cancelStream()
	}
	closer := e.closer
	e.mu.Unlock()

	if closer != nil {
		return closer.Close()
	}
	return nil
}

func (e *Engine) run(streamCtx, captureCtx context.Context) {
	defer e.finish()

	stream, err := e.open(streamCtx)
	if err != nil {
		e.fail(err)
		return
	}

	if err := stream.Send(e.streamingConfig()); err != nil {
		e.fail(fmt.Errorf("failed to send streaming config: %w", err))
		return
	}

	rd, err := e.source.Open(captureCtx)
	if err != nil {
		stream.CloseSend()
		e.logger.Error().Err(err).Msg("Audio capture failed to start")
		e.cb.OnError(recognition.ErrorAudioCapture, err)
		return
	}
	e.cb.OnStart()
	e.logger.Info().Msg("Google streaming recognition started")

	go e.pump(captureCtx, stream, rd)
	e.receive(stream)
}

// pump sends audio chunks until capture ends, then half-closes the stream.
func (e *Engine) pump(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient, rd io.ReadCloser) {
	defer rd.Close()
	defer stream.CloseSend()

	chunk := e.cfg.ChunkSize
	if chunk <= 0 {
		chunk = 3200
	}
	buf := make([]byte, chunk)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := rd.Read(buf)
		if n > 0 {
			sendErr := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: append([]byte(nil), buf[:n]...),
				},
			})
			if sendErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				e.logger.Warn().Err(err).Msg("Audio capture read failed")
			}
			return
		}
	}
}

// receive maps responses to callbacks until the stream ends.
func (e *Engine) receive(stream speechpb.Speech_StreamingRecognizeClient) {
	var finals []recognition.Segment
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if e.stopping() && classify(err) == recognition.ErrorAborted {
				return
			}
			e.fail(err)
			return
		}
		if resp.Error != nil && resp.Error.Code != 0 {
			e.fail(status.ErrorProto(resp.Error))
			return
		}

		resumeIndex := len(finals)
		var interim []recognition.Segment
		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			seg := recognition.Segment{Text: alt.Transcript, Final: r.IsFinal, Confidence: float64(alt.Confidence)}
			if r.IsFinal {
				finals = append(finals, seg)
			} else {
				interim = append(interim, seg)
			}
		}

		results := make([]recognition.Segment, 0, len(finals)+len(interim))
		results = append(results, finals...)
		results = append(results, interim...)
		if len(results) > resumeIndex {
			e.cb.OnResult(resumeIndex, results)
		}

		if resp.SpeechEventType == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			if err := e.Stop(); err != nil {
				e.logger.Debug().Err(err).Msg("Stop after single utterance ignored")
			}
		}
	}
}

func (e *Engine) streamingConfig() *speechpb.StreamingRecognizeRequest {
	maxAlternatives := int32(e.rcfg.MaxAlternatives)
	if maxAlternatives <= 0 {
		maxAlternatives = 1
	}
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(e.cfg.AudioEncoding),
					SampleRateHertz:            e.cfg.SampleRateHz,
					LanguageCode:               e.rcfg.Locale,
					MaxAlternatives:            maxAlternatives,
					EnableAutomaticPunctuation: e.cfg.Punctuation,
					Model:                      e.cfg.Model,
				},
				InterimResults:  e.rcfg.InterimResults,
				SingleUtterance: !e.rcfg.Continuous,
			},
		},
	}
}

func (e *Engine) stopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateDraining || e.state == stateClosed
}

func (e *Engine) fail(err error) {
	kind := classify(err)
	e.logger.Warn().Err(err).Str("errorKind", kind.String()).Msg("Google streaming recognition failed")
	e.cb.OnError(kind, err)
}

func (e *Engine) finish() {
	e.mu.Lock()
	if e.cancelCapture != nil {
		e.cancelCapture()
	}
	if e.cancelStream != nil {
		e.cancelStream()
	}
	if e.drainTimer != nil {
		e.drainTimer.Stop()
		e.drainTimer = nil
	}
	if e.state != stateClosed {
		e.state = stateIdle
	}
	e.mu.Unlock()

	e.logger.Info().Msg("Google streaming recognition ended")
	e.cb.OnEnd()
}
