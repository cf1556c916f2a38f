package httpapi

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jordain/weather-storyteller/internal/apperr"
	"github.com/Jordain/weather-storyteller/internal/pipeline"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const maxBodyBytes = 4 << 10

// Storyteller is the pipeline as seen by the presentation layer.
type Storyteller interface {
	Submit(ctx context.Context, city string) (pipeline.State, error)
	RetryNarrative(ctx context.Context) (pipeline.State, error)
	State() pipeline.State
}

type Server struct {
	story  Storyteller
	logger *slog.Logger
}

func NewServer(story Storyteller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{story: story, logger: logger}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/", s.handlePage)
	r.Post("/", s.handleFormSubmit)
	r.Post("/retry", s.handleFormRetry)

	r.Route("/api/story", func(r chi.Router) {
		r.Get("/", s.handleGetStory)
		r.Post("/", s.handleSubmitStory)
		r.Post("/retry", s.handleRetryStory)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	// Render into a buffer so a template error never leaves a half-written page.
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, newPageView(s.story.State())); err != nil {
		s.logger.Error("render page", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	// Failures are part of the state and shown on the page. The page polls
	// for the result, so a browser giving up on the POST must not cancel it;
	// the provider client timeouts still bound the run.
	_, _ = s.story.Submit(context.WithoutCancel(r.Context()), r.PostForm.Get("city"))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleFormRetry(w http.ResponseWriter, r *http.Request) {
	_, _ = s.story.RetryNarrative(context.WithoutCancel(r.Context()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type storyResponse struct {
	pipeline.State
	Weather *weatherView `json:"weather,omitempty"`
}

func newStoryResponse(st pipeline.State) storyResponse {
	return storyResponse{State: st, Weather: newPageView(st).Weather}
}

func (s *Server) handleGetStory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStoryResponse(s.story.State()))
}

func (s *Server) handleSubmitStory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		City string `json:"city"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	st, err := s.story.Submit(r.Context(), body.City)
	s.writeStory(w, st, err)
}

func (s *Server) handleRetryStory(w http.ResponseWriter, r *http.Request) {
	st, err := s.story.RetryNarrative(r.Context())
	s.writeStory(w, st, err)
}

func (s *Server) writeStory(w http.ResponseWriter, st pipeline.State, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, newStoryResponse(st))
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, pipeline.ErrNothingToRetry):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, statusFor(err), newStoryResponse(st))
	}
}

func statusFor(err error) int {
	switch apperr.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "remote", "malformed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
