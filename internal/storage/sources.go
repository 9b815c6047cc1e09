package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
)

// SourceStore tracks where questions are imported from.
type SourceStore struct {
	db *DB
}

// Insert inserts a new source and returns its ID.
func (s *SourceStore) Insert(ctx context.Context, path, sourceType string) (int64, error) {
	var id int64
	err := s.db.q(ctx).QueryRowContext(ctx, `
		INSERT INTO sources (path, type) VALUES ($1, $2) RETURNING id
	`, path, sourceType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	return id, nil
}

// FindByPath retrieves a source by its path, or nil, nil.
func (s *SourceStore) FindByPath(ctx context.Context, path string) (*domain.Source, error) {
	row := s.db.q(ctx).QueryRowContext(ctx, `
		SELECT id, path, type, last_scanned FROM sources WHERE path = $1
	`, path)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return src, nil
}

// List retrieves all stored sources.
func (s *SourceStore) List(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.q(ctx).QueryContext(ctx, `
		SELECT id, path, type, last_scanned FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// UpdateLastScanned stamps the last_scanned time of a source.
func (s *SourceStore) UpdateLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := s.db.q(ctx).ExecContext(ctx, `
		UPDATE sources SET last_scanned = $1 WHERE id = $2
	`, toMillis(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// Delete removes a source. Its questions are deactivated and detached, not
// deleted, because session queues may still reference them. It returns
// ErrNoRowsAffected if the source does not exist.
func (s *SourceStore) Delete(ctx context.Context, sourceID int64) error {
	return s.db.InTx(ctx, func(ctx context.Context) error {
		q := s.db.q(ctx)
		if _, err := q.ExecContext(ctx, `
			UPDATE questions SET is_active = 0, source_id = NULL, updated_at = $1 WHERE source_id = $2
		`, toMillis(time.Now()), sourceID); err != nil {
			return fmt.Errorf("failed to detach questions of source ID %d: %w", sourceID, err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, sourceID)
		if err != nil {
			return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
		}
		return expectRow(res)
	})
}

func scanSource(row rowScanner) (*domain.Source, error) {
	var (
		src         domain.Source
		lastScanned sql.NullInt64
	)
	if err := row.Scan(&src.ID, &src.Path, &src.Type, &lastScanned); err != nil {
		return nil, err
	}
	src.LastScanned = fromNullMillis(lastScanned)
	return &src, nil
}
