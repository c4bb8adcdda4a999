package server

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chat-widget/internal/api"
	"chat-widget/internal/render"
)

//go:embed static
var staticFS embed.FS

const maxBodyBytes = 64 << 10

type Server struct {
	session   api.Session
	formatter render.Formatter
	log       *slog.Logger
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

func New(session api.Session, formatter render.Formatter, opts ...Option) (*Server, error) {
	if session == nil {
		return nil, errors.New("server: session must not be nil")
	}
	if formatter == nil {
		return nil, errors.New("server: formatter must not be nil")
	}
	s := &Server{session: session, formatter: formatter, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Routes returns the widget page, its assets and the JSON API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(s.log))
	r.Use(middleware.Recoverer)

	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}

	r.Get("/healthz", s.health)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, assets, "index.html")
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(assets)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/transcript", s.getTranscript)
		r.Delete("/transcript", s.clearTranscript)
		r.Post("/messages", s.postMessage)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getTranscript(w http.ResponseWriter, _ *http.Request) {
	msgs, typing := s.session.Snapshot()
	writeJSON(w, http.StatusOK, api.NewTranscriptResponse(msgs, typing, s.formatter))
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req api.MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.InvalidBody())
		return
	}

	out, err := s.session.Send(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	_, typing := s.session.Snapshot()
	writeJSON(w, http.StatusOK, api.NewMessageResponse(out, typing, s.formatter))
}

func (s *Server) clearTranscript(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := api.StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "req_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
