// Package knol derives content identities for flashcards.
package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/devyk100/memoriva/internal/domain"
)

func normalizePart(part string) string {
	p := strings.ReplaceAll(part, "\r\n", "\n")
	return strings.ToLower(strings.TrimSpace(p))
}

// Normalize joins the card's front, back and context with newlines after
// lowercasing and trimming each.
func Normalize(card domain.Card) string {
	return strings.Join([]string{
		normalizePart(card.Front),
		normalizePart(card.Back),
		normalizePart(card.Context),
	}, "\n")
}

// Hash returns the hex SHA-256 of the normalized card. Two cards with the
// same hash in a deck are the same card.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}
