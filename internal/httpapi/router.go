// Package httpapi exposes the session controller over HTTP and pushes
// session events to websocket clients.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lingualive/internal/audio"
	"lingualive/internal/domain"
	"lingualive/internal/observability/logging"
	"lingualive/internal/ports"
	"lingualive/internal/recognition"
	"lingualive/internal/transcript"
	"lingualive/internal/usecase"
)

const (
	codeBadRequest domain.ErrorCode = "bad_request"
	codeConflict   domain.ErrorCode = "conflict"
	codeNotFound   domain.ErrorCode = "not_found"
)

// Controller is the session surface served by the router.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (domain.StopResult, error)
	Abort() error
	ForceReset()
	SwitchProvider(ctx context.Context, provider domain.Provider) error
	Status() domain.Status
	Summary() domain.Summary
	Entries() []domain.TranscriptEntry
	Export(format string) (transcript.Export, error)
	Clear() error
	Recording() ([]byte, string, error)
}

type handlers struct {
	controller Controller
	log        zerolog.Logger
}

// NewRouter constructs the HTTP router for the control API. A nil gatherer
// serves the default Prometheus registry.
func NewRouter(controller Controller, hub *Hub, gatherer prometheus.Gatherer, opts ...RouterOption) http.Handler {
	var options routerOptions
	for _, opt := range opts {
		opt(&options)
	}
	h := &handlers{controller: controller, log: logging.WithComponent("httpapi")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.Get("/readiness", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.status)
			r.Post("/start", h.start)
			r.Post("/stop", h.stop)
			r.Post("/abort", h.abort)
			r.Post("/reset", h.reset)
			r.Put("/provider", h.switchProvider)
			r.Get("/audio", h.recording)
		})
		r.Route("/transcript", func(r chi.Router) {
			r.Get("/", h.transcript)
			r.Delete("/", h.clear)
			r.Get("/export", h.export)
		})
		if hub != nil {
			r.Get("/events", hub.ServeWS)
		}
		if options.languages != nil {
			(&languageHandlers{svc: options.languages, h: h}).routes(r)
		}
	})

	return r
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Status())
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Start(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
}

func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	result, err := h.controller.Stop(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) abort(w http.ResponseWriter, _ *http.Request) {
	if err := h.controller.Abort(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
}

func (h *handlers) reset(w http.ResponseWriter, _ *http.Request) {
	h.controller.ForceReset()
	writeJSON(w, http.StatusOK, h.controller.Status())
}

type providerRequest struct {
	Provider string `json:"provider"`
}

func (h *handlers) switchProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "invalid request body", err.Error())
		return
	}
	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "unknown speech provider", err.Error())
		return
	}
	if err := h.controller.SwitchProvider(r.Context(), provider); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
}

func (h *handlers) recording(w http.ResponseWriter, _ *http.Request) {
	data, format, err := h.controller.Recording()
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type transcriptResponse struct {
	Summary domain.Summary           `json:"summary"`
	Entries []domain.TranscriptEntry `json:"entries"`
}

func (h *handlers) transcript(w http.ResponseWriter, _ *http.Request) {
	entries := h.controller.Entries()
	if entries == nil {
		entries = []domain.TranscriptEntry{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Summary: h.controller.Summary(), Entries: entries})
}

func (h *handlers) clear(w http.ResponseWriter, _ *http.Request) {
	if err := h.controller.Clear(); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(transcript.FormatText)
	}
	export, err := h.controller.Export(format)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "unsupported export format", err.Error())
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Content)
}

type problem struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Detail  string           `json:"detail,omitempty"`
}

// writeError maps controller errors onto HTTP statuses: contract conflicts
// are 409, device and recognizer availability 503, the rest 500.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	message := errorMessage(code, err.Error())
	if code == codeConflict || code == codeNotFound {
		message = err.Error()
	}
	writeProblem(w, status, code, message, err.Error())
}

func classify(err error) (int, domain.ErrorCode) {
	switch {
	case errors.Is(err, usecase.ErrSessionActive),
		errors.Is(err, usecase.ErrNoActiveSession),
		errors.Is(err, transcript.ErrSessionActive),
		errors.Is(err, transcript.ErrNoSession),
		errors.Is(err, recognition.ErrAlreadyRunning),
		errors.Is(err, audio.ErrAlreadyActive):
		return http.StatusConflict, codeConflict
	case errors.Is(err, audio.ErrNoRecording):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, audio.ErrPermissionDenied):
		return http.StatusServiceUnavailable, domain.ErrorCodePermissionDenied
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, domain.ErrorCodeDeviceUnavailable
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusServiceUnavailable, domain.ErrorCodeUnsupportedFormat
	case errors.Is(err, ports.ErrUnrecoverable), errors.Is(err, recognition.ErrRestartsExhausted):
		return http.StatusServiceUnavailable, domain.ErrorCodeTranscription
	default:
		return http.StatusInternalServerError, domain.ErrorCodeStartup
	}
}

func writeProblem(w http.ResponseWriter, status int, code domain.ErrorCode, message, detail string) {
	writeJSON(w, status, problem{Code: code, Message: message, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
