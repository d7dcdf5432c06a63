// Package classifier partitions a deck's cards into new and due sets and
// orders them into a study queue. Everything here is pure and safe for
// concurrent use.
package classifier

import (
	"math/rand"
	"sort"
	"time"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/devyk100/memoriva/internal/srs"
)

// SelectNewCards returns the IDs of never-studied cards in deck order,
// truncated to limit.
func SelectNewCards(cards []domain.CardWithState, limit int) []string {
	if limit <= 0 {
		return nil
	}
	ordered := make([]domain.CardWithState, 0, len(cards))
	for _, c := range cards {
		if c.State.IsNew() {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	return truncateIDs(ordered, limit)
}

// SelectDueCards returns the IDs of studied cards due by the end of now's
// calendar day, earliest first, truncated to limit.
func SelectDueCards(cards []domain.CardWithState, limit int, now time.Time) []string {
	if limit <= 0 {
		return nil
	}
	cutoff := srs.EndOfDay(now)
	due := make([]domain.CardWithState, 0, len(cards))
	for _, c := range cards {
		if c.State.IsNew() || c.State.NextReview == nil {
			continue
		}
		if !c.State.NextReview.After(cutoff) {
			due = append(due, c)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].State.NextReview.Before(*due[j].State.NextReview)
	})
	return truncateIDs(due, limit)
}

// BuildStudyQueue merges new and due IDs and shuffles them uniformly.
// The result always holds every distinct input ID exactly once; minSize is
// the caller's preferred lower bound and never pads or truncates.
func BuildStudyQueue(newIDs, dueIDs []string, minSize int) []string {
	all := make([]string, 0, len(newIDs)+len(dueIDs))
	seen := make(map[string]struct{}, cap(all))
	for _, ids := range [][]string{newIDs, dueIDs} {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			all = append(all, id)
		}
	}

	// Fisher-Yates.
	for i := len(all) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		all[i], all[j] = all[j], all[i]
	}

	return all
}

func truncateIDs(cards []domain.CardWithState, limit int) []string {
	if len(cards) > limit {
		cards = cards[:limit]
	}
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}
