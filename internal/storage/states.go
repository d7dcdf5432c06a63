package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/jmoiron/sqlx"
)

type cardStateRow struct {
	cardRow
	EaseFactor   float64      `db:"ease_factor"`
	Interval     int64        `db:"interval_minutes"`
	Repetitions  int          `db:"repetitions"`
	LastReviewed sql.NullTime `db:"last_reviewed"`
	NextReview   sql.NullTime `db:"next_review"`
	AgainCount   int          `db:"again_count"`
	HardCount    int          `db:"hard_count"`
	EasyCount    int          `db:"easy_count"`
}

func (r cardStateRow) toDomain() domain.CardWithState {
	return domain.CardWithState{
		Card: r.cardRow.toDomain(),
		State: domain.SchedulingState{
			Repetitions:  r.Repetitions,
			EaseFactor:   r.EaseFactor,
			Interval:     r.Interval,
			LastReviewed: timePtr(r.LastReviewed),
			NextReview:   timePtr(r.NextReview),
		},
		Tally: domain.ReviewTally{Again: r.AgainCount, Hard: r.HardCount, Easy: r.EasyCount},
	}
}

const cardStateQuery = `
	SELECT ` + cardColumns + `,
		s.ease_factor, s.interval_minutes, s.repetitions, s.last_reviewed, s.next_review,
		s.again_count, s.hard_count, s.easy_count
	FROM flashcards f
	JOIN srs_states s ON s.flashcard_id = f.id AND s.user_id = ?
`

// EnsureDeckAccess creates whatever a user needs to study a deck: settings
// row with the given defaults and an unstudied state for every card that
// has none. Existing rows are left alone.
func (db *DB) EnsureDeckAccess(ctx context.Context, userID, deckID string, defaults domain.DeckSettings, easeFactor float64) error {
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO deck_settings (user_id, deck_id, new_card_count, review_card_count)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, deck_id) DO NOTHING
		`), userID, deckID, defaults.NewCardCount, defaults.ReviewCardCount); err != nil {
			return fmt.Errorf("settings: %w", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO srs_states (user_id, flashcard_id, ease_factor, interval_minutes, repetitions)
			SELECT CAST(? AS TEXT), f.id, CAST(? AS DOUBLE PRECISION), 1, -1
			FROM flashcards f
			WHERE f.deck_id = ?
			ON CONFLICT (user_id, flashcard_id) DO NOTHING
		`), userID, easeFactor, deckID); err != nil {
			return fmt.Errorf("states: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to prepare deck %s for user %s: %w", deckID, userID, err)
	}
	return nil
}

// GetCardsWithState returns every card of a deck joined with the user's
// state, in position order. Cards without a state row are skipped.
func (db *DB) GetCardsWithState(ctx context.Context, userID, deckID string) ([]domain.CardWithState, error) {
	var rows []cardStateRow
	err := db.conn.SelectContext(ctx, &rows, db.q(cardStateQuery+` WHERE f.deck_id = ? ORDER BY f.position`), userID, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards with state for deck %s: %w", deckID, err)
	}
	return toCardsWithState(rows), nil
}

// GetCardsWithStateByIDs returns the named cards joined with the user's
// state, in no particular order. Unknown IDs are skipped.
func (db *DB) GetCardsWithStateByIDs(ctx context.Context, userID string, cardIDs []string) ([]domain.CardWithState, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(cardStateQuery+` WHERE f.id IN (?)`, userID, cardIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build card query: %w", err)
	}
	var rows []cardStateRow
	if err := db.conn.SelectContext(ctx, &rows, db.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get cards by id: %w", err)
	}
	return toCardsWithState(rows), nil
}

// GetCardWithState returns one card joined with the user's state.
func (db *DB) GetCardWithState(ctx context.Context, userID, cardID string) (domain.CardWithState, error) {
	var row cardStateRow
	err := db.conn.GetContext(ctx, &row, db.q(cardStateQuery+` WHERE f.id = ?`), userID, cardID)
	if err != nil {
		if isNoRows(err) {
			return domain.CardWithState{}, fmt.Errorf("card %s for user %s: %w", cardID, userID, domain.ErrNotFound)
		}
		return domain.CardWithState{}, fmt.Errorf("failed to get card %s: %w", cardID, err)
	}
	return row.toDomain(), nil
}

// UpdateState overwrites the user's scheduling state for a card and adds
// tally to the per-grade counts.
func (db *DB) UpdateState(ctx context.Context, userID, cardID string, state domain.SchedulingState, tally domain.ReviewTally) error {
	res, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE srs_states
		SET ease_factor = ?, interval_minutes = ?, repetitions = ?, last_reviewed = ?, next_review = ?,
			again_count = again_count + ?, hard_count = hard_count + ?, easy_count = easy_count + ?
		WHERE user_id = ? AND flashcard_id = ?
	`),
		state.EaseFactor,
		state.Interval,
		state.Repetitions,
		nullTime(state.LastReviewed),
		nullTime(state.NextReview),
		tally.Again,
		tally.Hard,
		tally.Easy,
		userID,
		cardID,
	)
	if err != nil {
		return fmt.Errorf("failed to update state for card %s: %w", cardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update state for card %s: %w", cardID, err)
	}
	if n == 0 {
		return fmt.Errorf("state for card %s and user %s: %w", cardID, userID, domain.ErrNotFound)
	}
	return nil
}

// GetSettings returns the user's stored settings for a deck.
func (db *DB) GetSettings(ctx context.Context, userID, deckID string) (domain.DeckSettings, error) {
	var s domain.DeckSettings
	err := db.conn.QueryRowxContext(ctx, db.q(`
		SELECT new_card_count, review_card_count
		FROM deck_settings WHERE user_id = ? AND deck_id = ?
	`), userID, deckID).Scan(&s.NewCardCount, &s.ReviewCardCount)
	if err != nil {
		if isNoRows(err) {
			return s, fmt.Errorf("settings for deck %s: %w", deckID, domain.ErrNotFound)
		}
		return s, fmt.Errorf("failed to get settings for deck %s: %w", deckID, err)
	}
	return s, nil
}

// UpsertSettings stores the user's settings for a deck.
func (db *DB) UpsertSettings(ctx context.Context, userID, deckID string, s domain.DeckSettings) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO deck_settings (user_id, deck_id, new_card_count, review_card_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, deck_id) DO UPDATE
		SET new_card_count = excluded.new_card_count, review_card_count = excluded.review_card_count
	`), userID, deckID, s.NewCardCount, s.ReviewCardCount)
	if err != nil {
		return fmt.Errorf("failed to save settings for deck %s: %w", deckID, err)
	}
	return nil
}

func toCardsWithState(rows []cardStateRow) []domain.CardWithState {
	out := make([]domain.CardWithState, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}
