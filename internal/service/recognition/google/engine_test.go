package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"interview-speech-service/internal/service/audio"
	"interview-speech-service/internal/service/recognition"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if cfg.DrainTimeout <= 0 {
		t.Errorf("expected positive drain timeout, got %v", cfg.DrainTimeout)
	}
	if cfg.MaxStreamDuration <= 0 || cfg.MaxStreamDuration > 5*time.Minute {
		t.Errorf("max stream duration %v outside streaming limit", cfg.MaxStreamDuration)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"linear16", speechpb.RecognitionConfig_LINEAR16}, // lowercase -> fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16},  // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},         // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want recognition.ErrorKind
	}{
		{"canceled context", context.Canceled, recognition.ErrorAborted},
		{"wrapped deadline", fmt.Errorf("recv: %w", context.DeadlineExceeded), recognition.ErrorNetwork},
		{"unavailable", status.Error(codes.Unavailable, "connection reset"), recognition.ErrorNetwork},
		{"audio timeout", status.Error(codes.OutOfRange, "Audio Timeout Error"), recognition.ErrorNoSpeech},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad token"), recognition.ErrorNotAllowed},
		{"api disabled", status.Error(codes.PermissionDenied, "api disabled"), recognition.ErrorServiceNotAllowed},
		{"quota", status.Error(codes.ResourceExhausted, "quota"), recognition.ErrorServiceNotAllowed},
		{"canceled status", status.Error(codes.Canceled, "canceled"), recognition.ErrorAborted},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad config"), recognition.ErrorOther},
		{"plain error", errors.New("boom"), recognition.ErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// fakeStream is a scripted streaming call.
type fakeStream struct {
	grpc.ClientStream

	mu        sync.Mutex
	sent      []*speechpb.StreamingRecognizeRequest
	responses chan *speechpb.StreamingRecognizeResponse
	recvErr   error
	halfClose chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		responses: make(chan *speechpb.StreamingRecognizeResponse, 16),
		halfClose: make(chan struct{}),
	}
}

func (s *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	return nil
}

func (s *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	resp, ok := <-s.responses
	if !ok {
		if s.recvErr != nil {
			return nil, s.recvErr
		}
		return nil, io.EOF
	}
	return resp, nil
}

func (s *fakeStream) CloseSend() error {
	s.closeOnce.Do(func() { close(s.halfClose) })
	return nil
}

func (s *fakeStream) firstRequest() *speechpb.StreamingRecognizeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[0]
}

// blockingSource yields silence until its context ends.
type blockingSource struct {
	err error
}

func (s blockingSource) Format() audio.Format {
	return audio.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

func (s blockingSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ctxReader{ctx: ctx}, nil
}

type ctxReader struct {
	ctx context.Context
}

func (r *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return copy(p, make([]byte, 320)), nil
	}
}

func (r *ctxReader) Close() error { return nil }

type result struct {
	resumeIndex int
	results     []recognition.Segment
}

type recorder struct {
	mu      sync.Mutex
	starts  int
	ends    int
	errs    []recognition.ErrorKind
	results []result
}

func (r *recorder) OnStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
}

func (r *recorder) OnEnd() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends++
}

func (r *recorder) OnError(kind recognition.ErrorKind, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, kind)
}

func (r *recorder) OnResult(resumeIndex int, results []recognition.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result{resumeIndex, append([]recognition.Segment(nil), results...)})
}

func (r *recorder) counts() (starts, ends, results int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.ends, len(r.results)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func response(final bool, text string) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			IsFinal:      final,
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text, Confidence: 0.9}},
		}},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DrainTimeout = time.Second
	cfg.MaxStreamDuration = 0
	return cfg
}

func TestEngine_StreamLifecycle(t *testing.T) {
	stream := newFakeStream()
	open := func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) { return stream, nil }
	rec := &recorder{}
	e := NewEngine(open, blockingSource{}, testConfig(), recognition.DefaultConfig(), rec)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { s, _, _ := rec.counts(); return s == 1 }, "start")

	cfg := stream.firstRequest().GetStreamingConfig()
	if cfg == nil {
		t.Fatal("first request must carry the streaming config")
	}
	if cfg.Config.LanguageCode != "ko-KR" || !cfg.InterimResults || cfg.SingleUtterance {
		t.Errorf("unexpected streaming config: %v", cfg)
	}

	stream.responses <- response(false, "안녕")
	stream.responses <- response(true, "안녕하세요")
	stream.responses <- response(false, "저는")
	waitFor(t, func() bool { _, _, n := rec.counts(); return n == 3 }, "three results")

	rec.mu.Lock()
	got := rec.results
	rec.mu.Unlock()
	if got[0].resumeIndex != 0 || got[0].results[0].Final {
		t.Errorf("first result = %+v", got[0])
	}
	if got[1].resumeIndex != 0 || !got[1].results[0].Final || got[1].results[0].Text != "안녕하세요" {
		t.Errorf("second result = %+v", got[1])
	}
	if got[2].resumeIndex != 1 || len(got[2].results) != 2 || got[2].results[1].Text != "저는" {
		t.Errorf("third result = %+v", got[2])
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	<-stream.halfClose
	if err := e.Start(); !errors.Is(err, recognition.ErrInvalidState) {
		t.Errorf("Start while draining = %v, want ErrInvalidState", err)
	}

	close(stream.responses)
	waitFor(t, func() bool { _, ends, _ := rec.counts(); return ends == 1 }, "end")
	if len(rec.errs) != 0 {
		t.Errorf("unexpected errors: %v", rec.errs)
	}
}

func TestEngine_OpenFailure(t *testing.T) {
	open := func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		return nil, status.Error(codes.Unavailable, "dns failure")
	}
	rec := &recorder{}
	e := NewEngine(open, blockingSource{}, testConfig(), recognition.DefaultConfig(), rec)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { _, ends, _ := rec.counts(); return ends == 1 }, "end")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.starts != 0 {
		t.Error("OnStart must not fire when the stream cannot open")
	}
	if len(rec.errs) != 1 || rec.errs[0] != recognition.ErrorNetwork {
		t.Errorf("errors = %v, want [network]", rec.errs)
	}
}

func TestEngine_CaptureFailure(t *testing.T) {
	stream := newFakeStream()
	open := func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) { return stream, nil }
	rec := &recorder{}
	e := NewEngine(open, blockingSource{err: errors.New("no microphone")}, testConfig(), recognition.DefaultConfig(), rec)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { _, ends, _ := rec.counts(); return ends == 1 }, "end")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 || rec.errs[0] != recognition.ErrorAudioCapture {
		t.Errorf("errors = %v, want [audio-capture]", rec.errs)
	}
}

func TestEngine_StreamError(t *testing.T) {
	stream := newFakeStream()
	stream.recvErr = status.Error(codes.OutOfRange, "Audio Timeout Error")
	open := func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) { return stream, nil }
	rec := &recorder{}
	e := NewEngine(open, blockingSource{}, testConfig(), recognition.DefaultConfig(), rec)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { s, _, _ := rec.counts(); return s == 1 }, "start")
	close(stream.responses)
	waitFor(t, func() bool { _, ends, _ := rec.counts(); return ends == 1 }, "end")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 || rec.errs[0] != recognition.ErrorNoSpeech {
		t.Errorf("errors = %v, want [no-speech]", rec.errs)
	}
}

func TestEngine_SingleUtteranceStops(t *testing.T) {
	stream := newFakeStream()
	open := func(context.Context) (speechpb.Speech_StreamingRecognizeClient, error) { return stream, nil }
	rec := &recorder{}
	rcfg := recognition.DefaultConfig()
	rcfg.Continuous = false
	e := NewEngine(open, blockingSource{}, testConfig(), rcfg, rec)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { s, _, _ := rec.counts(); return s == 1 }, "start")
	if !stream.firstRequest().GetStreamingConfig().SingleUtterance {
		t.Error("expected single utterance mode")
	}

	stream.responses <- response(true, "감사합니다")
	stream.responses <- &speechpb.StreamingRecognizeResponse{
		SpeechEventType: speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE,
	}
	select {
	case <-stream.halfClose:
	case <-time.After(2 * time.Second):
		t.Fatal("end of utterance did not stop capture")
	}

	close(stream.responses)
	waitFor(t, func() bool { _, ends, _ := rec.counts(); return ends == 1 }, "end")
}

func TestEngine_AbortRejectsStart(t *testing.T) {
	e := NewEngine(nil, blockingSource{}, testConfig(), recognition.DefaultConfig(), &recorder{})
	if err := e.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if err := e.Start(); !errors.Is(err, recognition.ErrClosed) {
		t.Errorf("Start after Abort = %v, want ErrClosed", err)
	}
}
