// Package limits enforces the per-user, per-deck daily caps on new and
// review cards.
package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devyk100/memoriva/internal/cache"
	"github.com/devyk100/memoriva/internal/domain"
)

// Kind is the cap a studied card counts against.
type Kind int

const (
	New Kind = iota
	Review
)

func (k Kind) String() string {
	if k == New {
		return "new"
	}
	return "review"
}

func (k Kind) field() string {
	if k == New {
		return cache.FieldNewStudied
	}
	return cache.FieldReviewStudied
}

// SettingsStore is the durable home of deck settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID, deckID string) (domain.DeckSettings, error)
	UpsertSettings(ctx context.Context, userID, deckID string, s domain.DeckSettings) error
}

// Allowance is how much a user may still study in a deck today.
type Allowance struct {
	CanStudyNew     bool `json:"canStudyNew"`
	CanStudyReview  bool `json:"canStudyReview"`
	RemainingNew    int  `json:"remainingNew"`
	RemainingReview int  `json:"remainingReview"`
}

// Tracker reads and updates the daily counters.
type Tracker struct {
	cache    *cache.Client
	store    SettingsStore
	defaults domain.DeckSettings
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithDefaults sets the settings used when a deck has none stored.
func WithDefaults(s domain.DeckSettings) Option {
	return func(t *Tracker) { t.defaults = s }
}

// WithLocation sets the time zone that decides where a day starts.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker.
func NewTracker(c *cache.Client, store SettingsStore, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		cache:    c,
		store:    store,
		defaults: domain.DefaultDeckSettings(),
		loc:      time.UTC,
		now:      time.Now,
		log:      logger.With("component", "limits"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Today returns the counter day for the current time.
func (t *Tracker) Today() string {
	return t.now().In(t.loc).Format(cache.DayLayout)
}

// GetCounters returns the day's counters, all zero if the cache has none or
// cannot be reached.
func (t *Tracker) GetCounters(ctx context.Context, userID, deckID, day string) cache.Counters {
	c, err := t.cache.GetCounters(ctx, userID, deckID, day)
	if err != nil {
		t.log.Warn("Failed to read daily counters", "user_id", userID, "deck_id", deckID, "day", day, "error", err)
		return cache.Counters{}
	}
	return c
}

// Increment records one studied card of kind for today.
func (t *Tracker) Increment(ctx context.Context, userID, deckID string, kind Kind) error {
	if err := t.cache.IncrementCounter(ctx, userID, deckID, t.Today(), kind.field()); err != nil {
		return fmt.Errorf("failed to count %s card: %w", kind, err)
	}
	return nil
}

// CheckAllowance compares today's counters against the deck settings.
func (t *Tracker) CheckAllowance(ctx context.Context, userID, deckID string) Allowance {
	settings := t.GetSettings(ctx, userID, deckID)
	counters := t.GetCounters(ctx, userID, deckID, t.Today())
	return allowance(settings, counters)
}

func allowance(s domain.DeckSettings, c cache.Counters) Allowance {
	a := Allowance{
		RemainingNew:    max(0, s.NewCardCount-c.NewStudied),
		RemainingReview: max(0, s.ReviewCardCount-c.ReviewStudied),
	}
	a.CanStudyNew = a.RemainingNew > 0
	a.CanStudyReview = a.RemainingReview > 0
	return a
}

// GetSettings returns the deck settings from the cache, then durable
// storage, then the defaults. A durable hit is written back to the cache.
func (t *Tracker) GetSettings(ctx context.Context, userID, deckID string) domain.DeckSettings {
	s, err := t.cache.GetSettings(ctx, userID, deckID)
	if err == nil {
		return s
	}
	if !errors.Is(err, cache.ErrMiss) {
		t.log.Warn("Failed to read cached settings", "user_id", userID, "deck_id", deckID, "error", err)
	}

	s, err = t.store.GetSettings(ctx, userID, deckID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			t.log.Warn("Failed to load settings, using defaults", "user_id", userID, "deck_id", deckID, "error", err)
		}
		return t.defaults
	}

	if err := t.cache.SetSettings(ctx, userID, deckID, s); err != nil {
		t.log.Warn("Failed to cache settings", "user_id", userID, "deck_id", deckID, "error", err)
	}
	return s
}

// SetSettings stores s durably and then refreshes the cache. Only the
// durable write can fail the call.
func (t *Tracker) SetSettings(ctx context.Context, userID, deckID string, s domain.DeckSettings) error {
	if err := t.store.UpsertSettings(ctx, userID, deckID, s); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	if err := t.cache.SetSettings(ctx, userID, deckID, s); err != nil {
		t.log.Warn("Failed to cache settings", "user_id", userID, "deck_id", deckID, "error", err)
	}
	return nil
}
