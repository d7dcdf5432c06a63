package storage

// schema is applied one statement at a time on Open. Every statement must
// run unchanged on SQLite and PostgreSQL.
var schema = []string{
	// A deck is shared by all users; per-user state lives in srs_states and
	// deck_settings.
	`CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL
)`,

	// The 'sources' table tracks where a deck's cards are imported from,
	// either a local directory or a git repository.
	`CREATE TABLE IF NOT EXISTS sources (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL REFERENCES decks(id),
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    last_scanned TIMESTAMP
)`,

	// position is the insertion order within the deck and drives the order
	// new cards are introduced in. hash is the normalized content hash.
	`CREATE TABLE IF NOT EXISTS flashcards (
    id TEXT PRIMARY KEY,
    deck_id TEXT NOT NULL REFERENCES decks(id),
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    source_id TEXT REFERENCES sources(id),
    position INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (deck_id, hash)
)`,

	`CREATE INDEX IF NOT EXISTS idx_flashcards_deck_position ON flashcards (deck_id, position)`,

	// repetitions = -1 marks a card the user has never graded.
	`CREATE TABLE IF NOT EXISTS srs_states (
    user_id TEXT NOT NULL,
    flashcard_id TEXT NOT NULL REFERENCES flashcards(id),
    ease_factor DOUBLE PRECISION NOT NULL,
    interval_minutes BIGINT NOT NULL,
    repetitions INTEGER NOT NULL,
    last_reviewed TIMESTAMP,
    next_review TIMESTAMP,
    again_count INTEGER NOT NULL DEFAULT 0,
    hard_count INTEGER NOT NULL DEFAULT 0,
    easy_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, flashcard_id)
)`,

	`CREATE TABLE IF NOT EXISTS deck_settings (
    user_id TEXT NOT NULL,
    deck_id TEXT NOT NULL REFERENCES decks(id),
    new_card_count INTEGER NOT NULL,
    review_card_count INTEGER NOT NULL,
    PRIMARY KEY (user_id, deck_id)
)`,
}
