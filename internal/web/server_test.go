package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/devyk100/memoriva/internal/importer"
	"github.com/devyk100/memoriva/internal/study"
)

type fakeStudy struct {
	user     string
	deck     string
	settings domain.DeckSettings
	grade    int
	reset    bool
	fallback bool
	err      error
}

func (f *fakeStudy) GetNextCards(ctx context.Context, userID, deckID string) (study.NextCards, error) {
	f.user, f.deck = userID, deckID
	if f.err != nil {
		return study.NextCards{}, f.err
	}
	return study.NextCards{Cards: []study.CardView{{ID: "c1", Front: "hola", Back: "hello"}}, QueueLength: 4}, nil
}

func (f *fakeStudy) GetNextCardsFallback(ctx context.Context, userID, deckID string) (study.NextCards, error) {
	f.fallback = true
	return study.NextCards{}, f.err
}

func (f *fakeStudy) UpdateCardSRS(ctx context.Context, userID, cardID string, grade int) (study.GradeResult, error) {
	f.user, f.grade = userID, grade
	if grade < 0 || grade > 2 {
		return study.GradeResult{}, fmt.Errorf("failed to grade: %w", domain.ErrInvalidGrade)
	}
	if cardID == "missing" {
		return study.GradeResult{}, domain.ErrNotFound
	}
	return study.GradeResult{Interval: 20, Repetitions: 1, EaseFactor: 1.3}, nil
}

func (f *fakeStudy) GetDeckStats(ctx context.Context, userID, deckID string) (domain.DeckStats, error) {
	return domain.DeckStats{TotalCards: 3, NewCards: 1}, f.err
}

func (f *fakeStudy) GetDeckSettings(ctx context.Context, userID, deckID string) (domain.DeckSettings, error) {
	return domain.DefaultDeckSettings(), f.err
}

func (f *fakeStudy) UpdateDeckSettings(ctx context.Context, userID, deckID string, settings domain.DeckSettings) error {
	if settings.NewCardCount < 0 {
		return fmt.Errorf("%w: negative", domain.ErrInvalidSettings)
	}
	f.settings = settings
	return f.err
}

func (f *fakeStudy) OpenDeck(ctx context.Context, userID, deckID string) (study.DeckOverview, error) {
	if deckID == "missing" {
		return study.DeckOverview{}, fmt.Errorf("failed to get deck: %w", domain.ErrNotFound)
	}
	return study.DeckOverview{Deck: domain.Deck{ID: deckID, Name: "Spanish", CreatedAt: time.Unix(0, 0).UTC()}}, f.err
}

func (f *fakeStudy) ResetQueue(ctx context.Context, userID, deckID string) error {
	f.reset = true
	return f.err
}

type fakeImporter struct {
	added []string
}

func (f *fakeImporter) AddSource(ctx context.Context, deckName, path string) (domain.Source, error) {
	if strings.HasPrefix(path, "/nope") {
		return domain.Source{}, errors.New("failed to stat " + path)
	}
	f.added = append(f.added, deckName+":"+path)
	return domain.Source{ID: "s1", DeckID: "d1", Path: path, Type: importer.SourceLocal}, nil
}

func (f *fakeImporter) Sources(ctx context.Context) ([]domain.Source, error) {
	return nil, nil
}

func (f *fakeImporter) SyncAll(ctx context.Context) ([]importer.Report, error) {
	return []importer.Report{{SourceID: "s1", Inserted: 2}}, nil
}

func newTestServer(svc *fakeStudy, im Importer) *Server {
	return NewServer(svc, im, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, path, body string, user string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		path       string
		body       string
		user       string
		svcErr     error
		wantStatus int
		wantBody   string
	}{
		{"health needs no user", http.MethodGet, "/healthz", "", "", nil, http.StatusOK, `"status":"ok"`},
		{"missing user", http.MethodGet, "/api/decks/d1/next", "", "", nil, http.StatusUnauthorized, UserHeader},
		{"next cards", http.MethodGet, "/api/decks/d1/next", "", "u1", nil, http.StatusOK, `"queueLength":4`},
		{"open deck", http.MethodGet, "/api/decks/d1", "", "u1", nil, http.StatusOK, `"name":"Spanish"`},
		{"unknown deck", http.MethodGet, "/api/decks/missing", "", "u1", nil, http.StatusNotFound, "not found"},
		{"stats", http.MethodGet, "/api/decks/d1/stats", "", "u1", nil, http.StatusOK, `"totalCards":3`},
		{"get settings", http.MethodGet, "/api/decks/d1/settings", "", "u1", nil, http.StatusOK, `"newCardCount":20`},
		{"put settings", http.MethodPut, "/api/decks/d1/settings", `{"newCardCount":5,"reviewCardCount":50}`, "u1", nil, http.StatusOK, `"newCardCount":5`},
		{"invalid settings", http.MethodPut, "/api/decks/d1/settings", `{"newCardCount":-1,"reviewCardCount":50}`, "u1", nil, http.StatusBadRequest, "invalid deck settings"},
		{"unknown settings field", http.MethodPut, "/api/decks/d1/settings", `{"limit":5}`, "u1", nil, http.StatusBadRequest, "invalid request body"},
		{"grade", http.MethodPost, "/api/cards/c1/grade", `{"grade":2}`, "u1", nil, http.StatusOK, `"interval":20`},
		{"grade out of range", http.MethodPost, "/api/cards/c1/grade", `{"grade":3}`, "u1", nil, http.StatusBadRequest, "invalid grade"},
		{"grade missing", http.MethodPost, "/api/cards/c1/grade", `{}`, "u1", nil, http.StatusBadRequest, "grade is required"},
		{"grade bad json", http.MethodPost, "/api/cards/c1/grade", `{"grade":`, "u1", nil, http.StatusBadRequest, "invalid request body"},
		{"grade unknown card", http.MethodPost, "/api/cards/missing/grade", `{"grade":0}`, "u1", nil, http.StatusNotFound, "not found"},
		{"internal error hidden", http.MethodGet, "/api/decks/d1/stats", "", "u1", errors.New("db exploded"), http.StatusInternalServerError, "internal server error"},
		{"wrong method", http.MethodPost, "/api/decks/d1/next", "", "u1", nil, http.StatusMethodNotAllowed, ""},
		{"wrong method on settings", http.MethodDelete, "/api/decks/d1/settings", "", "u1", nil, http.StatusMethodNotAllowed, ""},
		{"unknown path", http.MethodGet, "/api/nothing", "", "u1", nil, http.StatusNotFound, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeStudy{err: tc.svcErr}, nil)
			rec := do(t, s, tc.method, tc.path, tc.body, tc.user)

			if rec.Code != tc.wantStatus {
				t.Fatalf("Expected status %d, but got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Errorf("Expected body to contain %q, but got %s", tc.wantBody, rec.Body.String())
			}
			if strings.Contains(rec.Body.String(), "db exploded") {
				t.Errorf("Expected internal errors to stay hidden, but got %s", rec.Body.String())
			}
		})
	}
}

func TestHandlersPassRequestData(t *testing.T) {
	svc := &fakeStudy{}
	s := newTestServer(svc, nil)

	do(t, s, http.MethodGet, "/api/decks/deck-7/next", "", "user-9")
	if svc.user != "user-9" || svc.deck != "deck-7" {
		t.Errorf("Expected user-9 and deck-7, but got %s and %s", svc.user, svc.deck)
	}

	do(t, s, http.MethodPost, "/api/cards/c1/grade", `{"grade":0}`, "user-9")
	if svc.grade != 0 {
		t.Errorf("Expected grade 0 to be passed through, but got %d", svc.grade)
	}

	do(t, s, http.MethodPut, "/api/decks/d1/settings", `{"newCardCount":3,"reviewCardCount":9}`, "user-9")
	if svc.settings != (domain.DeckSettings{NewCardCount: 3, ReviewCardCount: 9}) {
		t.Errorf("Expected settings 3/9, but got %+v", svc.settings)
	}

	rec := do(t, s, http.MethodDelete, "/api/decks/d1/queue", "", "user-9")
	if rec.Code != http.StatusNoContent || !svc.reset {
		t.Errorf("Expected 204 and a queue reset, but got %d, %v", rec.Code, svc.reset)
	}

	rec = do(t, s, http.MethodGet, "/api/decks/d1/next/fallback", "", "user-9")
	if !svc.fallback {
		t.Error("Expected the fallback path to be called")
	}
	var next study.NextCards
	if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
		t.Fatal(err)
	}
	if next.Cards == nil || len(next.Cards) != 0 {
		t.Errorf("Expected an empty card list, but got %s", rec.Body.String())
	}
}

func TestSourceRoutes(t *testing.T) {
	t.Run("absent without importer", func(t *testing.T) {
		s := newTestServer(&fakeStudy{}, nil)
		if rec := do(t, s, http.MethodPost, "/api/sync", "", "u1"); rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, but got %d", rec.Code)
		}
	})

	im := &fakeImporter{}
	s := newTestServer(&fakeStudy{}, im)

	rec := do(t, s, http.MethodPost, "/api/sources", `{"deck":"Spanish","path":"/decks/es"}`, "u1")
	if rec.Code != http.StatusCreated || len(im.added) != 1 || im.added[0] != "Spanish:/decks/es" {
		t.Errorf("Expected a created source, but got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, "/api/sources", `{"deck":"Spanish","path":"/nope"}`, "u1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad path, but got %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/sources", `{"deck":"","path":"/decks/es"}`, "u1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a deck, but got %d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/sources", "", "u1")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected an empty list, but got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, "/api/sync", "", "u1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"inserted":2`) {
		t.Errorf("Expected sync reports, but got %d %s", rec.Code, rec.Body.String())
	}
}
