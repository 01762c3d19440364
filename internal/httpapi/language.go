package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lingualive/internal/domain"
	"lingualive/internal/translation"
)

// LanguageService is the language catalog, detection and speech synthesis
// surface proxied by the router.
type LanguageService interface {
	Languages(ctx context.Context) ([]translation.Language, error)
	DetectLanguage(ctx context.Context, text string) (domain.Detection, error)
	Voices(ctx context.Context, languageCode string) ([]translation.Voice, error)
	Synthesize(ctx context.Context, req translation.SpeechRequest) (translation.Speech, error)
}

// RouterOption customizes NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	languages LanguageService
}

// WithLanguageService mounts the language and speech routes.
func WithLanguageService(svc LanguageService) RouterOption {
	return func(o *routerOptions) { o.languages = svc }
}

type languageHandlers struct {
	svc LanguageService
	h   *handlers
}

func (l *languageHandlers) routes(r chi.Router) {
	r.Get("/languages", l.list)
	r.Post("/languages/detect", l.detect)
	r.Get("/tts/voices/{language}", l.voices)
	r.Post("/tts", l.synthesize)
}

func (l *languageHandlers) list(w http.ResponseWriter, r *http.Request) {
	languages, err := l.svc.Languages(r.Context())
	if err != nil {
		l.upstreamError(w, err)
		return
	}
	if languages == nil {
		languages = []translation.Language{}
	}
	writeJSON(w, http.StatusOK, languages)
}

type detectRequest struct {
	Text string `json:"text"`
}

func (l *languageHandlers) detect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "text is required", "")
		return
	}
	detection, err := l.svc.DetectLanguage(r.Context(), req.Text)
	if err != nil {
		l.upstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detection)
}

func (l *languageHandlers) voices(w http.ResponseWriter, r *http.Request) {
	voices, err := l.svc.Voices(r.Context(), chi.URLParam(r, "language"))
	if err != nil {
		l.upstreamError(w, err)
		return
	}
	if voices == nil {
		voices = []translation.Voice{}
	}
	writeJSON(w, http.StatusOK, map[string][]translation.Voice{"voices": voices})
}

func (l *languageHandlers) synthesize(w http.ResponseWriter, r *http.Request) {
	var req translation.SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" || strings.TrimSpace(req.LanguageCode) == "" {
		writeProblem(w, http.StatusBadRequest, codeBadRequest, "text and language_code are required", "")
		return
	}
	speech, err := l.svc.Synthesize(r.Context(), req)
	if err != nil {
		l.upstreamError(w, err)
		return
	}
	w.Header().Set("Content-Type", speechContentType(speech.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(speech.Audio)))
	if speech.VoiceName != "" {
		w.Header().Set("X-Voice-Name", speech.VoiceName)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(speech.Audio)
}

func (l *languageHandlers) upstreamError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, translation.ErrServiceUnavailable) {
		status = http.StatusBadGateway
	}
	l.h.log.Warn().Err(err).Int("status", status).Msg("language request failed")
	writeProblem(w, status, domain.ErrorCodeTranslation, errorMessage(domain.ErrorCodeTranslation, ""), err.Error())
}

func speechContentType(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "mp3", "mpeg", "audio/mpeg":
		return "audio/mpeg"
	case "wav", "audio/wav":
		return "audio/wav"
	case "ogg", "ogg_opus", "opus", "audio/ogg":
		return "audio/ogg"
	case "":
		return "application/octet-stream"
	default:
		if strings.Contains(format, "/") {
			return format
		}
		return "audio/" + format
	}
}
