// Package web exposes the study service as a JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/devyk100/memoriva/internal/importer"
	"github.com/devyk100/memoriva/internal/study"
	"github.com/gorilla/mux"
)

// UserHeader carries the authenticated user's ID, set by the proxy in front
// of the API.
const UserHeader = "X-User-ID"

type StudyService interface {
	GetNextCards(ctx context.Context, userID, deckID string) (study.NextCards, error)
	GetNextCardsFallback(ctx context.Context, userID, deckID string) (study.NextCards, error)
	UpdateCardSRS(ctx context.Context, userID, cardID string, grade int) (study.GradeResult, error)
	GetDeckStats(ctx context.Context, userID, deckID string) (domain.DeckStats, error)
	GetDeckSettings(ctx context.Context, userID, deckID string) (domain.DeckSettings, error)
	UpdateDeckSettings(ctx context.Context, userID, deckID string, settings domain.DeckSettings) error
	OpenDeck(ctx context.Context, userID, deckID string) (study.DeckOverview, error)
	ResetQueue(ctx context.Context, userID, deckID string) error
}

// Importer manages deck sources. It may be nil, in which case the source
// routes are not registered.
type Importer interface {
	AddSource(ctx context.Context, deckName, path string) (domain.Source, error)
	Sources(ctx context.Context) ([]domain.Source, error)
	SyncAll(ctx context.Context) ([]importer.Report, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	router   *mux.Router
	study    StudyService
	importer Importer
	log      *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(svc StudyService, im Importer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:   mux.NewRouter(),
		study:    svc,
		importer: im,
		log:      logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/healthz", s.handleHealth()).Methods(http.MethodGet)

	s.api(http.MethodGet, "/decks/{deckID}", s.handleOpenDeck())
	s.api(http.MethodGet, "/decks/{deckID}/next", s.handleNextCards(false))
	s.api(http.MethodGet, "/decks/{deckID}/next/fallback", s.handleNextCards(true))
	s.api(http.MethodGet, "/decks/{deckID}/stats", s.handleStats())
	s.api(http.MethodGet, "/decks/{deckID}/settings", s.handleGetSettings())
	s.api(http.MethodPut, "/decks/{deckID}/settings", s.handlePutSettings())
	s.api(http.MethodDelete, "/decks/{deckID}/queue", s.handleResetQueue())
	s.api(http.MethodPost, "/cards/{cardID}/grade", s.handleGrade())

	if s.importer != nil {
		s.api(http.MethodGet, "/sources", s.handleGetSources())
		s.api(http.MethodPost, "/sources", s.handlePostSource())
		s.api(http.MethodPost, "/sync", s.handlePostSync())
	}
}

// api registers an /api route that requires a user. Routes sit on the root
// router so a known path with the wrong method answers 405.
func (s *Server) api(method, path string, h http.HandlerFunc) {
	s.router.Handle("/api"+path, requireUser(h)).Methods(method)
}

type userKey struct{}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}

// requireUser rejects requests without a user header.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(UserHeader)
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + UserHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleOpenDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := s.study.OpenDeck(r.Context(), userID(r), mux.Vars(r)["deckID"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

func (s *Server) handleNextCards(fallback bool) http.HandlerFunc {
	next := s.study.GetNextCards
	if fallback {
		next = s.study.GetNextCardsFallback
	}
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := next(r.Context(), userID(r), mux.Vars(r)["deckID"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if cards.Cards == nil {
			cards.Cards = []study.CardView{}
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.study.GetDeckStats(r.Context(), userID(r), mux.Vars(r)["deckID"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleGetSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := s.study.GetDeckSettings(r.Context(), userID(r), mux.Vars(r)["deckID"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func (s *Server) handlePutSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var settings domain.DeckSettings
		if !decode(w, r, &settings) {
			return
		}
		deckID := mux.Vars(r)["deckID"]
		if err := s.study.UpdateDeckSettings(r.Context(), userID(r), deckID, settings); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	}
}

func (s *Server) handleResetQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.study.ResetQueue(r.Context(), userID(r), mux.Vars(r)["deckID"]); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type gradeRequest struct {
	Grade *int `json:"grade"`
}

func (s *Server) handleGrade() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Grade == nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "grade is required"})
			return
		}
		result, err := s.study.UpdateCardSRS(r.Context(), userID(r), mux.Vars(r)["cardID"], *req.Grade)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.importer.Sources(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if sources == nil {
			sources = []domain.Source{}
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

type sourceRequest struct {
	Deck string `json:"deck"`
	Path string `json:"path"`
}

func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Deck == "" || req.Path == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "deck and path are required"})
			return
		}
		src, err := s.importer.AddSource(r.Context(), req.Deck, req.Path)
		if err != nil {
			s.log.Warn("Failed to add source", "path", req.Path, "error", err)
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, src)
	}
}

func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := s.importer.SyncAll(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if reports == nil {
			reports = []importer.Report{}
		}
		writeJSON(w, http.StatusOK, reports)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, domain.ErrInvalidGrade), errors.Is(err, domain.ErrInvalidSettings):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}
