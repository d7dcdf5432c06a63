package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/devyk100/memoriva/internal/domain"
	"github.com/google/uuid"
)

type sourceRow struct {
	ID          string       `db:"id"`
	DeckID      string       `db:"deck_id"`
	Path        string       `db:"path"`
	Type        string       `db:"type"`
	LastScanned sql.NullTime `db:"last_scanned"`
}

func (r sourceRow) toDomain() domain.Source {
	return domain.Source{
		ID:          r.ID,
		DeckID:      r.DeckID,
		Path:        r.Path,
		Type:        r.Type,
		LastScanned: timePtr(r.LastScanned),
	}
}

// InsertSource registers a source path for a deck and returns it.
func (db *DB) InsertSource(ctx context.Context, deckID, path, sourceType string) (domain.Source, error) {
	s := domain.Source{ID: uuid.NewString(), DeckID: deckID, Path: path, Type: sourceType}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO sources (id, deck_id, path, type)
		VALUES (?, ?, ?, ?)
	`), s.ID, s.DeckID, s.Path, s.Type)
	if err != nil {
		return domain.Source{}, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	return s, nil
}

// FindSourceByPath retrieves a source by its path. It returns nil if there
// is none.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*domain.Source, error) {
	var row sourceRow
	err := db.conn.GetContext(ctx, &row, db.q(`
		SELECT id, deck_id, path, type, last_scanned
		FROM sources WHERE path = ?
	`), path)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	s := row.toDomain()
	return &s, nil
}

// GetAllSources returns every registered source.
func (db *DB) GetAllSources(ctx context.Context) ([]domain.Source, error) {
	var rows []sourceRow
	if err := db.conn.SelectContext(ctx, &rows, `SELECT id, deck_id, path, type, last_scanned FROM sources ORDER BY path`); err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	sources := make([]domain.Source, len(rows))
	for i, r := range rows {
		sources[i] = r.toDomain()
	}
	return sources, nil
}

// UpdateSourceLastScanned stamps a source with the current time.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID string) error {
	_, err := db.conn.ExecContext(ctx, db.q(`UPDATE sources SET last_scanned = ? WHERE id = ?`), db.now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source %s: %w", sourceID, err)
	}
	return nil
}
