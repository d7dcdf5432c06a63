package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type deckRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r deckRow) toDomain() domain.Deck {
	return domain.Deck{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

type cardRow struct {
	ID       string         `db:"id"`
	DeckID   string         `db:"deck_id"`
	Front    string         `db:"front"`
	Back     string         `db:"back"`
	Context  string         `db:"context"`
	Hash     string         `db:"hash"`
	SourceID sql.NullString `db:"source_id"`
	Position int            `db:"position"`
}

func (r cardRow) toDomain() domain.Card {
	return domain.Card{
		ID:       r.ID,
		DeckID:   r.DeckID,
		Front:    r.Front,
		Back:     r.Back,
		Context:  r.Context,
		Hash:     r.Hash,
		SourceID: r.SourceID.String,
		Position: r.Position,
	}
}

const cardColumns = `f.id, f.deck_id, f.front, f.back, f.context, f.hash, f.source_id, f.position`

// GetDeck retrieves a deck by ID.
func (db *DB) GetDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	var row deckRow
	err := db.conn.GetContext(ctx, &row, db.q(`SELECT id, name, created_at FROM decks WHERE id = ?`), deckID)
	if err != nil {
		if isNoRows(err) {
			return domain.Deck{}, fmt.Errorf("deck %s: %w", deckID, domain.ErrNotFound)
		}
		return domain.Deck{}, fmt.Errorf("failed to get deck %s: %w", deckID, err)
	}
	return row.toDomain(), nil
}

// EnsureDeck returns the deck called name, creating it if needed.
func (db *DB) EnsureDeck(ctx context.Context, name string) (domain.Deck, error) {
	var row deckRow
	err := db.conn.GetContext(ctx, &row, db.q(`SELECT id, name, created_at FROM decks WHERE name = ?`), name)
	if err == nil {
		return row.toDomain(), nil
	}
	if !isNoRows(err) {
		return domain.Deck{}, fmt.Errorf("failed to find deck %q: %w", name, err)
	}

	row = deckRow{ID: uuid.NewString(), Name: name, CreatedAt: db.now().UTC()}
	_, err = db.conn.ExecContext(ctx, db.q(`INSERT INTO decks (id, name, created_at) VALUES (?, ?, ?)`),
		row.ID, row.Name, row.CreatedAt)
	if err != nil {
		return domain.Deck{}, fmt.Errorf("failed to insert deck %q: %w", name, err)
	}
	return row.toDomain(), nil
}

// ListDeckCards returns every card in a deck in position order.
func (db *DB) ListDeckCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	var rows []cardRow
	err := db.conn.SelectContext(ctx, &rows, db.q(`
		SELECT `+cardColumns+`
		FROM flashcards f WHERE f.deck_id = ?
		ORDER BY f.position
	`), deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for deck %s: %w", deckID, err)
	}
	cards := make([]domain.Card, len(rows))
	for i, r := range rows {
		cards[i] = r.toDomain()
	}
	return cards, nil
}

// InsertCard appends card to its deck and returns it with its ID and
// position set.
func (db *DB) InsertCard(ctx context.Context, card domain.Card) (domain.Card, error) {
	card.ID = uuid.NewString()
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		var last int
		if err := tx.GetContext(ctx, &last, tx.Rebind(`SELECT COALESCE(MAX(position), 0) FROM flashcards WHERE deck_id = ?`), card.DeckID); err != nil {
			return fmt.Errorf("failed to read last position: %w", err)
		}
		card.Position = last + 1

		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO flashcards (id, deck_id, front, back, context, hash, source_id, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`),
			card.ID,
			card.DeckID,
			card.Front,
			card.Back,
			card.Context,
			card.Hash,
			nullString(card.SourceID),
			card.Position,
			db.now().UTC(),
		)
		return err
	})
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	return card, nil
}

// FindCardByHash retrieves a card in a deck by its content hash. It returns
// nil if there is none.
func (db *DB) FindCardByHash(ctx context.Context, deckID, hash string) (*domain.Card, error) {
	var row cardRow
	err := db.conn.GetContext(ctx, &row, db.q(`
		SELECT `+cardColumns+`
		FROM flashcards f WHERE f.deck_id = ? AND f.hash = ?
	`), deckID, hash)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	card := row.toDomain()
	return &card, nil
}

// GetCardsBySourceID returns every card imported from a source.
func (db *DB) GetCardsBySourceID(ctx context.Context, sourceID string) ([]domain.Card, error) {
	var rows []cardRow
	err := db.conn.SelectContext(ctx, &rows, db.q(`
		SELECT `+cardColumns+`
		FROM flashcards f WHERE f.source_id = ?
		ORDER BY f.position
	`), sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source %s: %w", sourceID, err)
	}
	cards := make([]domain.Card, len(rows))
	for i, r := range rows {
		cards[i] = r.toDomain()
	}
	return cards, nil
}

// DeleteCard removes a card together with every user's scheduling state
// for it.
func (db *DB) DeleteCard(ctx context.Context, cardID string) error {
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM srs_states WHERE flashcard_id = ?`), cardID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM flashcards WHERE id = ?`), cardID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", cardID, err)
	}
	return nil
}
