package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"interview-speech-service/internal/app"
	"interview-speech-service/internal/observability/metrics"
)

type startRequest struct {
	MicrophoneEnabled *bool `json:"microphoneEnabled"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter constructs the HTTP router for the service. A non-nil hub is
// served at /v1/session/events.
func NewRouter(application *app.Application, hub *Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(recordRequests(metrics.DefaultMetrics))

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1/session", func(r chi.Router) {
		m := application.Manager

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, m.Status())
		})
		r.Post("/start", func(w http.ResponseWriter, req *http.Request) {
			var body startRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.MicrophoneEnabled == nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"microphoneEnabled\": bool}"})
				return
			}
			if !m.SpeechSupported() {
				writeJSON(w, http.StatusConflict, errorResponse{Error: "speech recognition is not supported"})
				return
			}
			m.StartListening(*body.MicrophoneEnabled)
			writeJSON(w, http.StatusAccepted, m.Status())
		})
		r.Post("/stop", func(w http.ResponseWriter, _ *http.Request) {
			m.StopListening()
			writeJSON(w, http.StatusAccepted, m.Status())
		})
		r.Post("/clear", func(w http.ResponseWriter, _ *http.Request) {
			m.ClearCurrentAnswer()
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/take", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, answerResponse{Answer: m.TakeCurrentAnswerAndClear()})
		})
		if hub != nil {
			r.Get("/events", hub.ServeHTTP)
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// recordRequests records request metrics by route pattern.
func recordRequests(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			m.RecordRequest("http", r.Method+" "+route, http.StatusText(ww.Status()), time.Since(start).Seconds())
		})
	}
}
