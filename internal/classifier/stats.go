package classifier

import (
	"time"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/devyk100/memoriva/internal/srs"
)

// Stats counts new, due and future cards as of now, plus the cards last
// reviewed since the start of now's calendar day.
func Stats(cards []domain.CardWithState, now time.Time) domain.DeckStats {
	startOfDay := srs.StartOfDay(now)
	stats := domain.DeckStats{TotalCards: len(cards)}

	for _, c := range cards {
		switch {
		case c.State.IsNew():
			stats.NewCards++
		case c.State.NextReview != nil && !c.State.NextReview.After(now):
			stats.DueCards++
		default:
			stats.FutureCards++
		}

		if c.State.LastReviewed != nil && !c.State.LastReviewed.Before(startOfDay) {
			stats.StudiedToday++
		}
	}
	return stats
}
