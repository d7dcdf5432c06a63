package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/devyk100/memoriva/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedDeck(t *testing.T, db *DB, name string, fronts ...string) (domain.Deck, []domain.Card) {
	t.Helper()
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, name)
	if err != nil {
		t.Fatalf("Failed to create deck: %v", err)
	}
	var cards []domain.Card
	for _, front := range fronts {
		c, err := db.InsertCard(ctx, domain.Card{DeckID: deck.ID, Front: front, Back: "back of " + front, Hash: "hash-" + front})
		if err != nil {
			t.Fatalf("Failed to insert card: %v", err)
		}
		cards = append(cards, c)
	}
	return deck, cards
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "whatever"); err == nil {
		t.Error("Expected an unknown driver to be rejected")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := Open(DriverSQLite, path)
		if err != nil {
			t.Fatalf("Expected schema to apply twice, but got %v", err)
		}
		db.Close()
	}
}

func TestDecks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	deck, err := db.EnsureDeck(ctx, "Go")
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	again, err := db.EnsureDeck(ctx, "Go")
	if err != nil || again.ID != deck.ID {
		t.Errorf("Expected EnsureDeck to return the existing deck %s, but got %s (%v)", deck.ID, again.ID, err)
	}

	got, err := db.GetDeck(ctx, deck.ID)
	if err != nil || got.Name != "Go" {
		t.Errorf("Expected deck Go, but got %+v (%v)", got, err)
	}

	if _, err := db.GetDeck(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, but got %v", err)
	}
}

func TestInsertCardAssignsPositions(t *testing.T) {
	db := openTestDB(t)
	deck, cards := seedDeck(t, db, "Go", "a", "b", "c")

	for i, c := range cards {
		if c.Position != i+1 {
			t.Errorf("Expected card %s at position %d, but got %d", c.Front, i+1, c.Position)
		}
		if c.ID == "" {
			t.Error("Expected an ID to be assigned")
		}
	}

	listed, err := db.ListDeckCards(context.Background(), deck.ID)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if len(listed) != 3 || listed[0].Front != "a" || listed[2].Front != "c" {
		t.Errorf("Expected cards a, b, c in order, but got %+v", listed)
	}

	_, other := seedDeck(t, db, "Other", "x")
	if other[0].Position != 1 {
		t.Errorf("Expected positions to be per deck, but got %d", other[0].Position)
	}
}

func TestEnsureDeckAccess(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deck, cards := seedDeck(t, db, "Go", "a", "b")

	if err := db.EnsureDeckAccess(ctx, "u1", deck.ID, domain.DefaultDeckSettings(), 1.3); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	states, err := db.GetCardsWithState(ctx, "u1", deck.ID)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("Expected 2 states, but got %d", len(states))
	}
	for _, s := range states {
		if s.State.Repetitions != -1 || s.State.Interval != 1 || s.State.EaseFactor != 1.3 {
			t.Errorf("Expected an unstudied state, but got %+v", s.State)
		}
		if s.State.LastReviewed != nil || s.State.NextReview != nil {
			t.Errorf("Expected no review times, but got %+v", s.State)
		}
	}

	settings, err := db.GetSettings(ctx, "u1", deck.ID)
	if err != nil || settings != domain.DefaultDeckSettings() {
		t.Errorf("Expected default settings, but got %+v (%v)", settings, err)
	}

	// A studied card survives a second call, and new cards get a state.
	next := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	studied := domain.SchedulingState{Repetitions: 1, EaseFactor: 1.3, Interval: 20, LastReviewed: &next, NextReview: &next}
	if err := db.UpdateState(ctx, "u1", cards[0].ID, studied, domain.ReviewTally{}); err != nil {
		t.Fatal(err)
	}
	seedMore, err := db.InsertCard(ctx, domain.Card{DeckID: deck.ID, Front: "c", Back: "c", Hash: "hash-c"})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.EnsureDeckAccess(ctx, "u1", deck.ID, domain.DeckSettings{NewCardCount: 1, ReviewCardCount: 1}, 2.0); err != nil {
		t.Fatal(err)
	}

	first, err := db.GetCardWithState(ctx, "u1", cards[0].ID)
	if err != nil || first.State.Repetitions != 1 {
		t.Errorf("Expected the studied state to survive, but got %+v (%v)", first.State, err)
	}
	added, err := db.GetCardWithState(ctx, "u1", seedMore.ID)
	if err != nil || added.State.Repetitions != -1 || added.State.EaseFactor != 2.0 {
		t.Errorf("Expected a fresh state for the new card, but got %+v (%v)", added.State, err)
	}
	if s, _ := db.GetSettings(ctx, "u1", deck.ID); s != domain.DefaultDeckSettings() {
		t.Errorf("Expected existing settings to be kept, but got %+v", s)
	}
}

func TestUpdateState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deck, cards := seedDeck(t, db, "Go", "a")
	if err := db.EnsureDeckAccess(ctx, "u1", deck.ID, domain.DefaultDeckSettings(), 1.3); err != nil {
		t.Fatal(err)
	}

	last := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	next := last.Add(2880 * time.Minute)
	state := domain.SchedulingState{Repetitions: 4, EaseFactor: 2.0, Interval: 2880, LastReviewed: &last, NextReview: &next}

	if err := db.UpdateState(ctx, "u1", cards[0].ID, state, domain.ReviewTally{Easy: 1}); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if err := db.UpdateState(ctx, "u1", cards[0].ID, state, domain.ReviewTally{Again: 1}); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	got, err := db.GetCardWithState(ctx, "u1", cards[0].ID)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if got.State.Repetitions != 4 || got.State.Interval != 2880 || got.State.EaseFactor != 2.0 {
		t.Errorf("Expected the stored state, but got %+v", got.State)
	}
	if !got.State.NextReview.Equal(next) || !got.State.LastReviewed.Equal(last) {
		t.Errorf("Expected times %v / %v, but got %v / %v", last, next, got.State.LastReviewed, got.State.NextReview)
	}
	if got.Tally != (domain.ReviewTally{Again: 1, Easy: 1}) {
		t.Errorf("Expected tally again=1 easy=1, but got %+v", got.Tally)
	}

	if err := db.UpdateState(ctx, "u2", cards[0].ID, state, domain.ReviewTally{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a user without state, but got %v", err)
	}
	if _, err := db.GetCardWithState(ctx, "u1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, but got %v", err)
	}
}

func TestGetCardsWithStateByIDs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deck, cards := seedDeck(t, db, "Go", "a", "b", "c")
	if err := db.EnsureDeckAccess(ctx, "u1", deck.ID, domain.DefaultDeckSettings(), 1.3); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCardsWithStateByIDs(ctx, "u1", []string{cards[2].ID, cards[0].ID, "missing"})
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 cards, but got %d", len(got))
	}

	if got, err := db.GetCardsWithStateByIDs(ctx, "u1", nil); err != nil || got != nil {
		t.Errorf("Expected nothing for no IDs, but got %v (%v)", got, err)
	}
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deck, _ := seedDeck(t, db, "Go")

	if _, err := db.GetSettings(ctx, "u1", deck.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, but got %v", err)
	}

	for _, s := range []domain.DeckSettings{{NewCardCount: 5, ReviewCardCount: 50}, {NewCardCount: 0, ReviewCardCount: 10}} {
		if err := db.UpsertSettings(ctx, "u1", deck.ID, s); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		got, err := db.GetSettings(ctx, "u1", deck.ID)
		if err != nil || got != s {
			t.Errorf("Expected %+v, but got %+v (%v)", s, got, err)
		}
	}
}

func TestDeleteCardRemovesStates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deck, cards := seedDeck(t, db, "Go", "a", "b")
	if err := db.EnsureDeckAccess(ctx, "u1", deck.ID, domain.DefaultDeckSettings(), 1.3); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteCard(ctx, cards[0].ID); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	states, err := db.GetCardsWithState(ctx, "u1", deck.ID)
	if err != nil || len(states) != 1 || states[0].ID != cards[1].ID {
		t.Errorf("Expected only card b to remain, but got %+v (%v)", states, err)
	}
	found, err := db.FindCardByHash(ctx, deck.ID, "hash-a")
	if err != nil || found != nil {
		t.Errorf("Expected the deleted card to be gone, but got %+v (%v)", found, err)
	}
}

func TestSources(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	deck, _ := seedDeck(t, db, "Go")

	src, err := db.InsertSource(ctx, deck.ID, "/tmp/cards", "local")
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if _, err := db.InsertSource(ctx, deck.ID, "/tmp/cards", "local"); err == nil {
		t.Error("Expected a duplicate path to be rejected")
	}

	found, err := db.FindSourceByPath(ctx, "/tmp/cards")
	if err != nil || found == nil || found.ID != src.ID || found.LastScanned != nil {
		t.Fatalf("Expected source %s, but got %+v (%v)", src.ID, found, err)
	}

	if err := db.UpdateSourceLastScanned(ctx, src.ID); err != nil {
		t.Fatal(err)
	}
	all, err := db.GetAllSources(ctx)
	if err != nil || len(all) != 1 || all[0].LastScanned == nil {
		t.Errorf("Expected one scanned source, but got %+v (%v)", all, err)
	}

	card, err := db.InsertCard(ctx, domain.Card{DeckID: deck.ID, Front: "q", Back: "a", Hash: "h", SourceID: src.ID})
	if err != nil {
		t.Fatal(err)
	}
	bySource, err := db.GetCardsBySourceID(ctx, src.ID)
	if err != nil || len(bySource) != 1 || bySource[0].ID != card.ID {
		t.Errorf("Expected card %s for the source, but got %+v (%v)", card.ID, bySource, err)
	}

	missing, err := db.FindSourceByPath(ctx, "/nowhere")
	if err != nil || missing != nil {
		t.Errorf("Expected no source, but got %+v (%v)", missing, err)
	}
}
