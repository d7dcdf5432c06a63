package study

import (
	"context"
	"errors"
)

type queueResult struct {
	next NextCards
	err  error
}

// GetNextCards returns the next batch of cards from the user's queue,
// refilling it when it runs low. If the cache is down, slow or empty the
// batch is computed from durable storage instead.
func (s *Service) GetNextCards(ctx context.Context, userID, deckID string) (NextCards, error) {
	if _, err := s.prepareDeck(ctx, userID, deckID); err != nil {
		return NextCards{}, err
	}
	log := s.log.With("user_id", userID, "deck_id", deckID)

	if !s.cache.Healthy() {
		log.Warn("Cache marked unhealthy, using durable storage")
		return s.fallback(ctx, userID, deckID)
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()

	// Buffered so a late result never blocks the goroutine.
	results := make(chan queueResult, 1)
	go func() {
		next, err := s.nextFromQueue(cctx, userID, deckID)
		results <- queueResult{next: next, err: err}
	}()

	select {
	case r := <-results:
		switch {
		case r.err != nil:
			log.Warn("Queue path failed, using durable storage", "error", r.err)
		case len(r.next.Cards) == 0:
			log.Warn("Queue returned no cards, using durable storage")
		default:
			return r.next, nil
		}
	case <-cctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return NextCards{}, ctx.Err()
		}
		log.Warn("Queue path timed out, using durable storage", "timeout", s.opts.CacheTimeout)
	}

	return s.fallback(ctx, userID, deckID)
}

func (s *Service) nextFromQueue(ctx context.Context, userID, deckID string) (NextCards, error) {
	q := s.cache.Queue(userID, deckID)

	if q.Length(ctx) < s.opts.RefillThreshold {
		allowance := s.limits.CheckAllowance(ctx, userID, deckID)
		cards, err := s.store.GetCardsWithState(ctx, userID, deckID)
		if err != nil {
			return NextCards{}, err
		}
		ids := s.buildQueue(cards, allowance.RemainingNew, allowance.RemainingReview, s.opts.RefillMinSize)
		q.Set(ctx, ids)
		s.log.Debug("Queue refilled", "user_id", userID, "deck_id", deckID, "size", len(ids))
	}

	ids := q.PopMany(ctx, s.opts.BatchSize)
	if len(ids) == 0 {
		return NextCards{}, nil
	}

	cards, err := s.store.GetCardsWithStateByIDs(ctx, userID, ids)
	if err != nil {
		return NextCards{}, err
	}
	return NextCards{
		Cards:       toViews(orderByIDs(cards, ids)),
		QueueLength: q.Length(ctx),
	}, nil
}

// GetNextCardsFallback computes a batch of cards straight from durable
// storage, leaving the cache untouched.
func (s *Service) GetNextCardsFallback(ctx context.Context, userID, deckID string) (NextCards, error) {
	if _, err := s.prepareDeck(ctx, userID, deckID); err != nil {
		return NextCards{}, err
	}
	return s.fallback(ctx, userID, deckID)
}

func (s *Service) fallback(ctx context.Context, userID, deckID string) (NextCards, error) {
	settings, err := s.settingsOrDefaults(ctx, userID, deckID)
	if err != nil {
		return NextCards{}, err
	}
	cards, err := s.store.GetCardsWithState(ctx, userID, deckID)
	if err != nil {
		return NextCards{}, err
	}

	ids := s.buildQueue(cards, settings.NewCardCount, settings.ReviewCardCount, s.opts.FallbackBatchSize)
	if len(ids) > s.opts.FallbackBatchSize {
		ids = ids[:s.opts.FallbackBatchSize]
	}
	views := toViews(orderByIDs(cards, ids))
	return NextCards{Cards: views, QueueLength: len(views)}, nil
}
