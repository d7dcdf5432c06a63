package study

import (
	"context"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/devyk100/memoriva/internal/limits"
	"github.com/devyk100/memoriva/internal/srs"
)

// UpdateCardSRS records a grade for a card and returns its new schedule.
// Counting the card against the daily caps is best effort.
func (s *Service) UpdateCardSRS(ctx context.Context, userID, cardID string, grade int) (GradeResult, error) {
	g, err := srs.ParseGrade(grade)
	if err != nil {
		return GradeResult{}, err
	}

	card, err := s.store.GetCardWithState(ctx, userID, cardID)
	if err != nil {
		return GradeResult{}, err
	}

	res := s.params.NextState(card.State, g, s.now())
	if err := s.store.UpdateState(ctx, userID, cardID, res.State, tallyFor(g)); err != nil {
		return GradeResult{}, err
	}

	kind := limits.Review
	if res.WasNew && res.ConsumesNewAllowance {
		kind = limits.New
	}
	ictx, cancel := context.WithTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()
	if err := s.limits.Increment(ictx, userID, card.DeckID, kind); err != nil {
		s.log.Warn("Failed to count studied card", "user_id", userID, "card_id", cardID, "kind", kind, "error", err)
	}

	return GradeResult{
		NextReview:  *res.State.NextReview,
		Interval:    res.State.Interval,
		Repetitions: res.State.Repetitions,
		EaseFactor:  res.State.EaseFactor,
	}, nil
}

func tallyFor(g srs.Grade) domain.ReviewTally {
	switch g {
	case srs.Again:
		return domain.ReviewTally{Again: 1}
	case srs.Hard:
		return domain.ReviewTally{Hard: 1}
	default:
		return domain.ReviewTally{Easy: 1}
	}
}
