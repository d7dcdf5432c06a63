// Package study serves study sessions: it hands out the next cards to
// review, records grades and keeps per-deck settings. The Redis queue is
// the fast path; durable storage always backs it.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devyk100/memoriva/internal/cache"
	"github.com/devyk100/memoriva/internal/classifier"
	"github.com/devyk100/memoriva/internal/domain"
	"github.com/devyk100/memoriva/internal/limits"
	"github.com/devyk100/memoriva/internal/srs"
	"github.com/go-playground/validator/v10"
)

// Store is the durable storage the service needs.
type Store interface {
	GetDeck(ctx context.Context, deckID string) (domain.Deck, error)
	EnsureDeckAccess(ctx context.Context, userID, deckID string, defaults domain.DeckSettings, easeFactor float64) error
	GetCardsWithState(ctx context.Context, userID, deckID string) ([]domain.CardWithState, error)
	GetCardsWithStateByIDs(ctx context.Context, userID string, cardIDs []string) ([]domain.CardWithState, error)
	GetCardWithState(ctx context.Context, userID, cardID string) (domain.CardWithState, error)
	UpdateState(ctx context.Context, userID, cardID string, state domain.SchedulingState, tally domain.ReviewTally) error
	GetSettings(ctx context.Context, userID, deckID string) (domain.DeckSettings, error)
	UpsertSettings(ctx context.Context, userID, deckID string, s domain.DeckSettings) error
}

// Options tunes the queue behaviour.
type Options struct {
	// CacheTimeout bounds the whole cache path of GetNextCards.
	CacheTimeout time.Duration
	// The queue is refilled when it holds fewer than RefillThreshold cards.
	RefillThreshold int
	// BatchSize is the number of cards handed out per call.
	BatchSize         int
	RefillMinSize     int
	FallbackBatchSize int
	Defaults          domain.DeckSettings
	Clock             func() time.Time
}

// DefaultOptions returns the standard queue tuning.
func DefaultOptions() Options {
	return Options{
		CacheTimeout:      time.Second,
		RefillThreshold:   5,
		BatchSize:         10,
		RefillMinSize:     20,
		FallbackBatchSize: 10,
		Defaults:          domain.DefaultDeckSettings(),
		Clock:             time.Now,
	}
}

// CardView is a card as shown to a studying user.
type CardView struct {
	ID      string                 `json:"id"`
	Front   string                 `json:"front"`
	Back    string                 `json:"back"`
	Context string                 `json:"context,omitempty"`
	State   domain.SchedulingState `json:"srsMetadata"`
}

// NextCards is a batch of cards to study and the number still queued.
type NextCards struct {
	Cards       []CardView `json:"cards"`
	QueueLength int        `json:"queueLength"`
}

// GradeResult is the card's schedule after grading.
type GradeResult struct {
	NextReview  time.Time `json:"nextReview"`
	Interval    int64     `json:"interval"`
	Repetitions int       `json:"repetitions"`
	EaseFactor  float64   `json:"easeFactor"`
}

// DeckOverview is everything a user sees when opening a deck.
type DeckOverview struct {
	Deck     domain.Deck            `json:"deck"`
	Settings domain.DeckSettings    `json:"metadata"`
	Stats    domain.DeckStats       `json:"stats"`
	Cards    []domain.CardWithState `json:"flashcards"`
}

// Service implements the study operations.
type Service struct {
	store    Store
	cache    *cache.Client
	limits   *limits.Tracker
	params   *srs.Params
	opts     Options
	validate *validator.Validate
	log      *slog.Logger
}

// New creates a Service.
func New(store Store, c *cache.Client, tracker *limits.Tracker, params *srs.Params, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:    store,
		cache:    c,
		limits:   tracker,
		params:   params,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.With("component", "study"),
	}
}

func (s *Service) now() time.Time {
	t := s.opts.Clock()
	if s.params.Location != nil {
		t = t.In(s.params.Location)
	}
	return t
}

// prepareDeck checks the deck exists and creates the user's settings and
// card states on first access.
func (s *Service) prepareDeck(ctx context.Context, userID, deckID string) (domain.Deck, error) {
	deck, err := s.store.GetDeck(ctx, deckID)
	if err != nil {
		return domain.Deck{}, err
	}
	if err := s.store.EnsureDeckAccess(ctx, userID, deckID, s.opts.Defaults, s.params.DefaultEaseFactor); err != nil {
		return domain.Deck{}, err
	}
	return deck, nil
}

// buildQueue classifies cards and shuffles the eligible ones into a queue.
// Both the cache refill and the fallback path go through here.
func (s *Service) buildQueue(cards []domain.CardWithState, maxNew, maxReview, minSize int) []string {
	newIDs := classifier.SelectNewCards(cards, maxNew)
	dueIDs := classifier.SelectDueCards(cards, maxReview, s.now())
	return classifier.BuildStudyQueue(newIDs, dueIDs, minSize)
}

func toViews(cards []domain.CardWithState) []CardView {
	views := make([]CardView, len(cards))
	for i, c := range cards {
		views[i] = CardView{ID: c.ID, Front: c.Front, Back: c.Back, Context: c.Context, State: c.State}
	}
	return views
}

// orderByIDs returns the cards in ids order, dropping IDs with no card.
func orderByIDs(cards []domain.CardWithState, ids []string) []domain.CardWithState {
	byID := make(map[string]domain.CardWithState, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	ordered := make([]domain.CardWithState, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

func (s *Service) settingsOrDefaults(ctx context.Context, userID, deckID string) (domain.DeckSettings, error) {
	settings, err := s.store.GetSettings(ctx, userID, deckID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.opts.Defaults, nil
	}
	return settings, err
}

// GetDeckSettings returns the user's caps for a deck.
func (s *Service) GetDeckSettings(ctx context.Context, userID, deckID string) (domain.DeckSettings, error) {
	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return domain.DeckSettings{}, err
	}
	return s.limits.GetSettings(ctx, userID, deckID), nil
}

// UpdateDeckSettings stores new caps and drops the current queue so the
// next request is built against them.
func (s *Service) UpdateDeckSettings(ctx context.Context, userID, deckID string, settings domain.DeckSettings) error {
	if err := s.validate.Struct(settings); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSettings, err)
	}
	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return err
	}
	if err := s.limits.SetSettings(ctx, userID, deckID, settings); err != nil {
		return err
	}
	s.cache.Queue(userID, deckID).Clear(ctx)
	s.log.Info("Deck settings updated", "user_id", userID, "deck_id", deckID,
		"new_card_count", settings.NewCardCount, "review_card_count", settings.ReviewCardCount)
	return nil
}

// GetDeckStats counts the user's cards in a deck by scheduling status.
func (s *Service) GetDeckStats(ctx context.Context, userID, deckID string) (domain.DeckStats, error) {
	if _, err := s.prepareDeck(ctx, userID, deckID); err != nil {
		return domain.DeckStats{}, err
	}
	cards, err := s.store.GetCardsWithState(ctx, userID, deckID)
	if err != nil {
		return domain.DeckStats{}, err
	}
	return classifier.Stats(cards, s.now()), nil
}

// OpenDeck returns the deck with the user's settings, stats and every card
// with its scheduling state.
func (s *Service) OpenDeck(ctx context.Context, userID, deckID string) (DeckOverview, error) {
	deck, err := s.prepareDeck(ctx, userID, deckID)
	if err != nil {
		return DeckOverview{}, err
	}
	settings, err := s.settingsOrDefaults(ctx, userID, deckID)
	if err != nil {
		return DeckOverview{}, err
	}
	cards, err := s.store.GetCardsWithState(ctx, userID, deckID)
	if err != nil {
		return DeckOverview{}, err
	}
	return DeckOverview{
		Deck:     deck,
		Settings: settings,
		Stats:    classifier.Stats(cards, s.now()),
		Cards:    cards,
	}, nil
}

// ResetQueue discards the user's queue for a deck.
func (s *Service) ResetQueue(ctx context.Context, userID, deckID string) error {
	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return err
	}
	s.cache.Queue(userID, deckID).Clear(ctx)
	return nil
}
