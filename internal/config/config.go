// Package config loads memoriva's configuration. Values are layered:
// built-in defaults, then an optional YAML file, then MEMORIVA_* environment
// variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // Timezones resolve without a system zoneinfo

	"github.com/devyk100/memoriva/internal/cache"
	"github.com/devyk100/memoriva/internal/domain"
	"github.com/devyk100/memoriva/internal/srs"
	"github.com/devyk100/memoriva/internal/study"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables. A double underscore
// separates nesting levels, so MEMORIVA_STUDY__BATCH_SIZE sets
// study.batch_size.
const EnvPrefix = "MEMORIVA_"

type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	HTTP     HTTPConfig     `koanf:"http"`
	Log      LogConfig      `koanf:"log"`
	SRS      SRSConfig      `koanf:"srs"`
	Study    StudyConfig    `koanf:"study"`
	Import   ImportConfig   `koanf:"import"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres pgx"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type RedisConfig struct {
	URL            string        `koanf:"url" validate:"required"`
	DialTimeout    time.Duration `koanf:"dial_timeout" validate:"gt=0"`
	HealthInterval time.Duration `koanf:"health_interval" validate:"gte=1s"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type SRSConfig struct {
	DefaultEaseFactor float64 `koanf:"default_ease_factor" validate:"gte=1.3,lte=2.7"`
	NewCardPolicy     string  `koanf:"new_card_policy" validate:"oneof=every_grade easy_only"`
	Timezone          string  `koanf:"timezone" validate:"required"`
}

type StudyConfig struct {
	CacheTimeout           time.Duration `koanf:"cache_timeout" validate:"gt=0"`
	RefillThreshold        int           `koanf:"refill_threshold" validate:"gte=1"`
	BatchSize              int           `koanf:"batch_size" validate:"gte=1"`
	RefillMinSize          int           `koanf:"refill_min_size" validate:"gte=0"`
	FallbackBatchSize      int           `koanf:"fallback_batch_size" validate:"gte=1"`
	QueueTTL               time.Duration `koanf:"queue_ttl" validate:"gt=0"`
	CounterTTL             time.Duration `koanf:"counter_ttl" validate:"gt=0"`
	SettingsTTL            time.Duration `koanf:"settings_ttl" validate:"gt=0"`
	DefaultNewCardCount    int           `koanf:"default_new_card_count" validate:"gte=0"`
	DefaultReviewCardCount int           `koanf:"default_review_card_count" validate:"gte=0"`
}

type ImportConfig struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "memoriva.db"},
		Redis: RedisConfig{
			URL:            "redis://localhost:6379/0",
			DialTimeout:    2 * time.Second,
			HealthInterval: 15 * time.Second,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "text"},
		SRS: SRSConfig{
			DefaultEaseFactor: srs.MinEaseFactor,
			NewCardPolicy:     string(srs.EveryGrade),
			Timezone:          "UTC",
		},
		Study: StudyConfig{
			CacheTimeout:           time.Second,
			RefillThreshold:        5,
			BatchSize:              10,
			RefillMinSize:          20,
			FallbackBatchSize:      10,
			QueueTTL:               time.Hour,
			CounterTTL:             24 * time.Hour,
			SettingsTTL:            24 * time.Hour,
			DefaultNewCardCount:    20,
			DefaultReviewCardCount: 100,
		},
		Import: ImportConfig{ReposDir: "repos"},
	}
}

// Flags registers the flags shared by every command on fs.
func Flags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("config", "", "Path to a YAML config file")
	fs.String("database.driver", def.Database.Driver, "Database driver: sqlite, postgres or pgx")
	fs.String("database.dsn", def.Database.DSN, "Database connection string")
	fs.String("redis.url", def.Redis.URL, "Redis URL")
	fs.String("http.addr", def.HTTP.Addr, "HTTP listen address")
	fs.String("log.level", def.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log.format", def.Log.Format, "Log format: text or json")
}

// Load builds the configuration from defaults, the file named by the
// --config flag, the environment and the flags in fs. fs must already be
// parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Only flags set on the command line override earlier layers.
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, changedFlag), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func changedFlag(f *pflag.Flag) (string, interface{}) {
	if !f.Changed || f.Name == "config" {
		return "", nil
	}
	return f.Name, f.Value.String()
}

// Validate checks field constraints and the values that need parsing.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone that defines a calendar day.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.SRS.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid srs.timezone %q: %w", c.SRS.Timezone, err)
	}
	return loc, nil
}

// SRSParams returns the scheduler parameters.
func (c *Config) SRSParams() (*srs.Params, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	p := &srs.Params{
		DefaultEaseFactor: c.SRS.DefaultEaseFactor,
		NewCardPolicy:     srs.NewCardPolicy(c.SRS.NewCardPolicy),
		Location:          loc,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultDeckSettings returns the caps applied to decks with no stored
// settings.
func (c *Config) DefaultDeckSettings() domain.DeckSettings {
	return domain.DeckSettings{
		NewCardCount:    c.Study.DefaultNewCardCount,
		ReviewCardCount: c.Study.DefaultReviewCardCount,
	}
}

// CacheOptions returns the Redis client options.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		URL:         c.Redis.URL,
		DialTimeout: c.Redis.DialTimeout,
		QueueTTL:    c.Study.QueueTTL,
		CounterTTL:  c.Study.CounterTTL,
		SettingsTTL: c.Study.SettingsTTL,
	}
}

// StudyOptions returns the queue tuning for the study service.
func (c *Config) StudyOptions() study.Options {
	return study.Options{
		CacheTimeout:      c.Study.CacheTimeout,
		RefillThreshold:   c.Study.RefillThreshold,
		BatchSize:         c.Study.BatchSize,
		RefillMinSize:     c.Study.RefillMinSize,
		FallbackBatchSize: c.Study.FallbackBatchSize,
		Defaults:          c.DefaultDeckSettings(),
		Clock:             time.Now,
	}
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
