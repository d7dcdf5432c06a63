package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a cached record does not exist.
var ErrMiss = errors.New("cache: miss")

// Counter hash fields.
const (
	FieldNewStudied    = "newCardsStudied"
	FieldReviewStudied = "reviewCardsStudied"
)

// Counters are the cards a user has studied in a deck on one day.
type Counters struct {
	NewStudied    int
	ReviewStudied int
}

// GetCounters reads the counters for day. A missing hash is all zeros.
func (c *Client) GetCounters(ctx context.Context, userID, deckID, day string) (Counters, error) {
	vals, err := c.rdb.HGetAll(ctx, dailyKey(userID, deckID, day)).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("failed to read daily counters: %w", errors.Join(domain.ErrCacheUnavailable, err))
	}
	return Counters{
		NewStudied:    atoiOrZero(vals[FieldNewStudied]),
		ReviewStudied: atoiOrZero(vals[FieldReviewStudied]),
	}, nil
}

// IncrementCounter adds one to field for day and refreshes the key's expiry
// in the same round trip.
func (c *Client) IncrementCounter(ctx context.Context, userID, deckID, day, field string) error {
	key := dailyKey(userID, deckID, day)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, field, 1)
		pipe.Expire(ctx, key, c.opts.CounterTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", field, errors.Join(domain.ErrCacheUnavailable, err))
	}
	return nil
}

// settingsRecord is the cached shape of domain.DeckSettings.
type settingsRecord struct {
	NewCardCount    int
	ReviewCardCount int
}

func (r settingsRecord) fields() map[string]any {
	return map[string]any{
		"newCardCount":    r.NewCardCount,
		"reviewCardCount": r.ReviewCardCount,
	}
}

func parseSettingsRecord(vals map[string]string) (settingsRecord, error) {
	var r settingsRecord
	var err error
	if r.NewCardCount, err = strconv.Atoi(vals["newCardCount"]); err != nil {
		return r, fmt.Errorf("bad newCardCount %q: %w", vals["newCardCount"], err)
	}
	if r.ReviewCardCount, err = strconv.Atoi(vals["reviewCardCount"]); err != nil {
		return r, fmt.Errorf("bad reviewCardCount %q: %w", vals["reviewCardCount"], err)
	}
	return r, nil
}

// GetSettings returns the cached settings, or ErrMiss when none are cached
// or the cached record is unreadable.
func (c *Client) GetSettings(ctx context.Context, userID, deckID string) (domain.DeckSettings, error) {
	key := settingsKey(userID, deckID)
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.DeckSettings{}, fmt.Errorf("failed to read settings: %w", errors.Join(domain.ErrCacheUnavailable, err))
	}
	if len(vals) == 0 {
		return domain.DeckSettings{}, ErrMiss
	}
	r, err := parseSettingsRecord(vals)
	if err != nil {
		c.warn("Discarding malformed cached settings", err, "key", key)
		return domain.DeckSettings{}, ErrMiss
	}
	return domain.DeckSettings{NewCardCount: r.NewCardCount, ReviewCardCount: r.ReviewCardCount}, nil
}

// SetSettings caches s with the settings expiry.
func (c *Client) SetSettings(ctx context.Context, userID, deckID string, s domain.DeckSettings) error {
	key := settingsKey(userID, deckID)
	rec := settingsRecord{NewCardCount: s.NewCardCount, ReviewCardCount: s.ReviewCardCount}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, rec.fields())
		pipe.Expire(ctx, key, c.opts.SettingsTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache settings: %w", errors.Join(domain.ErrCacheUnavailable, err))
	}
	return nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
