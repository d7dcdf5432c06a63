package domain

import "time"

// DeckSettings holds a user's daily study caps for a deck.
type DeckSettings struct {
	NewCardCount    int `json:"newCardCount" validate:"gte=0,lte=10000"`
	ReviewCardCount int `json:"reviewCardCount" validate:"gte=0,lte=100000"`
}

// DefaultDeckSettings are applied when a user has no stored settings for a deck.
func DefaultDeckSettings() DeckSettings {
	return DeckSettings{
		NewCardCount:    20,
		ReviewCardCount: 100,
	}
}

// DeckStats summarises a user's scheduling states for a deck.
type DeckStats struct {
	TotalCards   int `json:"totalCards"`
	NewCards     int `json:"newCards"`
	DueCards     int `json:"dueCards"`
	FutureCards  int `json:"futureCards"`
	StudiedToday int `json:"studiedToday"`
}

// Source is a location cards for a deck are imported from.
type Source struct {
	ID          string     `json:"id"`
	DeckID      string     `json:"deckId"`
	Path        string     `json:"path"`
	Type        string     `json:"type"` // "local" or "git"
	LastScanned *time.Time `json:"lastScanned"`
}
