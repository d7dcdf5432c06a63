package domain

import "time"

// Deck is a named collection of flashcards.
type Deck struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Card is a single front/back flashcard belonging to a deck.
// Position is the card's insertion order within the deck. Hash identifies
// the card's content across imports.
type Card struct {
	ID       string `json:"id"`
	DeckID   string `json:"deckId"`
	Front    string `json:"front"`
	Back     string `json:"back"`
	Context  string `json:"context,omitempty"`
	Hash     string `json:"-"`
	SourceID string `json:"-"`
	Position int    `json:"-"`
}

// SchedulingState is a user's spaced-repetition state for one card.
// Repetitions == -1 marks a card that has never been graded; in that case
// LastReviewed and NextReview are nil. Interval is in minutes.
type SchedulingState struct {
	Repetitions  int        `json:"repetitions"`
	EaseFactor   float64    `json:"easeFactor"`
	Interval     int64      `json:"interval"`
	LastReviewed *time.Time `json:"lastReviewed"`
	NextReview   *time.Time `json:"nextReview"`
}

// IsNew reports whether the card has never been graded.
func (s SchedulingState) IsNew() bool {
	return s.Repetitions < 0
}

// ReviewTally counts how often a user has given each grade to a card.
type ReviewTally struct {
	Again int `json:"againCount"`
	Hard  int `json:"hardCount"`
	Easy  int `json:"easyCount"`
}

// CardWithState joins a card with one user's scheduling state for it.
type CardWithState struct {
	Card
	State SchedulingState `json:"srsMetadata"`
	Tally ReviewTally     `json:"reviews"`
}
