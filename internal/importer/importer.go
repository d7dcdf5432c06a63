// Package importer loads flashcards into decks from local directories and
// git repositories, keeping each deck in step with its sources.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/devyk100/memoriva/internal/gitsource"
	"github.com/devyk100/memoriva/internal/knol"
	"github.com/devyk100/memoriva/internal/parser"
	"github.com/microcosm-cc/bluemonday"
)

const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Store is the persistence the importer needs.
type Store interface {
	EnsureDeck(ctx context.Context, name string) (domain.Deck, error)
	InsertSource(ctx context.Context, deckID, path, sourceType string) (domain.Source, error)
	FindSourceByPath(ctx context.Context, path string) (*domain.Source, error)
	GetAllSources(ctx context.Context) ([]domain.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID string) error
	InsertCard(ctx context.Context, card domain.Card) (domain.Card, error)
	FindCardByHash(ctx context.Context, deckID, hash string) (*domain.Card, error)
	GetCardsBySourceID(ctx context.Context, sourceID string) ([]domain.Card, error)
	DeleteCard(ctx context.Context, cardID string) error
}

// Report describes the outcome of syncing one source.
type Report struct {
	SourceID string   `json:"sourceId"`
	Path     string   `json:"path"`
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Deleted  int      `json:"deleted"`
	Errors   []string `json:"errors,omitempty"`
}

type Importer struct {
	store    Store
	reposDir string
	policy   *bluemonday.Policy
}

// New returns an importer that clones git sources under reposDir.
func New(store Store, reposDir string) *Importer {
	return &Importer{
		store:    store,
		reposDir: reposDir,
		policy:   bluemonday.UGCPolicy(),
	}
}

// AddSource registers path as a source for the named deck, creating the
// deck if needed. Registering the same path twice returns the existing
// source.
func (im *Importer) AddSource(ctx context.Context, deckName, path string) (domain.Source, error) {
	if strings.TrimSpace(deckName) == "" {
		return domain.Source{}, errors.New("deck name is required")
	}

	sourceType := SourceGit
	if !gitsource.IsRemote(path) {
		sourceType = SourceLocal
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.Source{}, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return domain.Source{}, fmt.Errorf("failed to stat %s: %w", abs, err)
		}
		if !info.IsDir() {
			return domain.Source{}, fmt.Errorf("source %s is not a directory", abs)
		}
		path = abs
	}

	existing, err := im.store.FindSourceByPath(ctx, path)
	if err != nil {
		return domain.Source{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	deck, err := im.store.EnsureDeck(ctx, deckName)
	if err != nil {
		return domain.Source{}, err
	}
	src, err := im.store.InsertSource(ctx, deck.ID, path, sourceType)
	if err != nil {
		return domain.Source{}, err
	}
	slog.Info("Source added", "deck", deckName, "type", sourceType, "path", path)
	return src, nil
}

// Sources lists every registered source.
func (im *Importer) Sources(ctx context.Context) ([]domain.Source, error) {
	return im.store.GetAllSources(ctx)
}

// SyncAll syncs every registered source. A source that fails is reported
// and the remaining sources are still synced.
func (im *Importer) SyncAll(ctx context.Context) ([]Report, error) {
	sources, err := im.store.GetAllSources(ctx)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		slog.Info("No sources configured")
		return nil, nil
	}

	reports := make([]Report, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := im.SyncSource(ctx, src)
		if err != nil {
			slog.Error("Failed to sync source", "id", src.ID, "path", src.Path, "error", err)
			report.Errors = append(report.Errors, err.Error())
		}
		reports = append(reports, report)
	}
	slog.Info("Sync complete", "sources", len(reports))
	return reports, nil
}

// SyncSource brings the cards imported from src in line with its current
// contents. Git sources are cloned or pulled first.
func (im *Importer) SyncSource(ctx context.Context, src domain.Source) (Report, error) {
	report := Report{SourceID: src.ID, Path: src.Path}
	dir := src.Path

	if src.Type == SourceGit {
		local, err := gitsource.LocalPath(im.reposDir, src.Path)
		if err != nil {
			return report, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return report, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, src.Path, local); err != nil {
			return report, err
		}
		dir = local
	}

	slog.Info("Syncing source", "id", src.ID, "type", src.Type, "path", dir)
	return im.reconcile(ctx, src, dir, report)
}

func (im *Importer) reconcile(ctx context.Context, src domain.Source, dir string, report Report) (Report, error) {
	found := make(map[string]bool)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !parser.Supported(d.Name()) {
			return nil
		}

		cards, err := parser.ParseFile(path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("parsing %s: %v", path, err))
			return nil
		}
		for _, card := range cards {
			card = im.sanitize(card)
			if card.Front == "" {
				continue
			}
			card.DeckID = src.DeckID
			card.SourceID = src.ID
			card.Hash = knol.Hash(card)
			report.Parsed++
			if found[card.Hash] {
				continue
			}
			found[card.Hash] = true

			existing, err := im.store.FindCardByHash(ctx, src.DeckID, card.Hash)
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
				continue
			}
			if existing != nil {
				continue
			}
			if _, err := im.store.InsertCard(ctx, card); err != nil {
				report.Errors = append(report.Errors, err.Error())
				continue
			}
			report.Inserted++
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("failed to walk %s: %w", dir, walkErr)
	}

	stored, err := im.store.GetCardsBySourceID(ctx, src.ID)
	if err != nil {
		return report, err
	}
	for _, card := range stored {
		if found[card.Hash] {
			continue
		}
		if err := im.store.DeleteCard(ctx, card.ID); err != nil {
			slog.Warn("Failed to delete orphaned card", "id", card.ID, "error", err)
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Deleted++
	}

	if err := im.store.UpdateSourceLastScanned(ctx, src.ID); err != nil {
		slog.Warn("Failed to update last scanned", "source_id", src.ID, "error", err)
	}

	slog.Info("Reconciliation complete",
		"path", dir,
		"parsed", report.Parsed,
		"inserted", report.Inserted,
		"deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

var markup = regexp.MustCompile(`<[A-Za-z!/?]`)

// sanitize strips unsafe markup from every text field. Fields without any
// tags are plain text and are kept as written.
func (im *Importer) sanitize(card domain.Card) domain.Card {
	card.Front = im.clean(card.Front)
	card.Back = im.clean(card.Back)
	card.Context = im.clean(card.Context)
	return card
}

func (im *Importer) clean(s string) string {
	if markup.MatchString(s) {
		s = im.policy.Sanitize(s)
	}
	return strings.TrimSpace(s)
}
