package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
)

// QueueStore persists the per-session question queue.
type QueueStore struct {
	db *DB
}

const queueColumns = `id, session_id, question_id, priority, times_shown, times_correct, times_wrong,
	is_mastered, next_eligible_at, last_shown_at, avg_time_seconds, version`

// InsertMany stores all items, one row per item. Call it inside
// InTx to make the batch atomic.
func (s *QueueStore) InsertMany(ctx context.Context, items []domain.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	q := s.db.q(ctx)
	const insert = `
		INSERT INTO queue_items (id, session_id, question_id, priority, times_shown, times_correct, times_wrong,
			is_mastered, next_eligible_at, last_shown_at, avg_time_seconds, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, it := range items {
		_, err := q.ExecContext(ctx, insert,
			it.ID,
			it.SessionID,
			it.QuestionID,
			it.Priority,
			it.TimesShown,
			it.TimesCorrect,
			it.TimesWrong,
			boolToInt(it.IsMastered),
			nullMillis(it.NextEligibleAt),
			nullMillis(it.LastShownAt),
			it.AvgTimeSeconds,
			it.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to insert queue item for question %s: %w", it.QuestionID, err)
		}
	}
	return nil
}

// FindEligible returns up to limit unmastered items of a session whose delay
// has passed at now, lowest priority first. excludeQuestionID, when set, is
// left out of the result.
func (s *QueueStore) FindEligible(ctx context.Context, sessionID, excludeQuestionID string, now time.Time, limit int) ([]domain.QueueItem, error) {
	rows, err := s.db.q(ctx).QueryContext(ctx, `
		SELECT `+queueColumns+` FROM queue_items
		WHERE session_id = $1
			AND is_mastered = 0
			AND (next_eligible_at IS NULL OR next_eligible_at <= $2)
			AND question_id <> $3
		ORDER BY priority ASC, id ASC
		LIMIT $4
	`, sessionID, toMillis(now), excludeQuestionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find eligible items for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item row: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// FindOne retrieves the item of a session for a question, or nil, nil.
func (s *QueueStore) FindOne(ctx context.Context, sessionID, questionID string) (*domain.QueueItem, error) {
	row := s.db.q(ctx).QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM queue_items WHERE session_id = $1 AND question_id = $2
	`, sessionID, questionID)
	return s.one(row, questionID)
}

// FindByID retrieves an item by its id, or nil, nil.
func (s *QueueStore) FindByID(ctx context.Context, itemID string) (*domain.QueueItem, error) {
	row := s.db.q(ctx).QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id = $1`, itemID)
	return s.one(row, itemID)
}

func (s *QueueStore) one(row *sql.Row, key string) (*domain.QueueItem, error) {
	it, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find queue item %s: %w", key, err)
	}
	return it, nil
}

// ListBySession returns every item of a session in priority order.
func (s *QueueStore) ListBySession(ctx context.Context, sessionID string) ([]domain.QueueItem, error) {
	rows, err := s.db.q(ctx).QueryContext(ctx, `
		SELECT `+queueColumns+` FROM queue_items WHERE session_id = $1 ORDER BY priority ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item row: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// MarkShown increments times_shown and stamps last_shown_at in one statement.
func (s *QueueStore) MarkShown(ctx context.Context, itemID string, at time.Time) error {
	res, err := s.db.q(ctx).ExecContext(ctx, `
		UPDATE queue_items
		SET times_shown = times_shown + 1, last_shown_at = $1
		WHERE id = $2
	`, toMillis(at), itemID)
	if err != nil {
		return fmt.Errorf("failed to mark queue item %s shown: %w", itemID, err)
	}
	return expectRow(res)
}

// ApplyOutcome writes the scheduling fields of an item if its version is still
// version, and bumps the version. It reports false when another writer got
// there first.
func (s *QueueStore) ApplyOutcome(ctx context.Context, itemID string, version int64, p domain.QueuePatch) (bool, error) {
	res, err := s.db.q(ctx).ExecContext(ctx, `
		UPDATE queue_items
		SET priority = $1,
			times_correct = $2,
			times_wrong = $3,
			is_mastered = $4,
			next_eligible_at = $5,
			avg_time_seconds = $6,
			version = version + 1
		WHERE id = $7 AND version = $8
	`,
		p.Priority,
		p.TimesCorrect,
		p.TimesWrong,
		boolToInt(p.IsMastered),
		nullMillis(p.NextEligibleAt),
		p.AvgTimeSeconds,
		itemID,
		version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update queue item %s: %w", itemID, err)
	}
	if err := expectRow(res); err != nil {
		if errors.Is(err, ErrNoRowsAffected) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CountUnmastered returns how many items of a session are not yet mastered.
func (s *QueueStore) CountUnmastered(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.q(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_items WHERE session_id = $1 AND is_mastered = 0
	`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unmastered items for session %s: %w", sessionID, err)
	}
	return n, nil
}

func scanQueueItem(row rowScanner) (*domain.QueueItem, error) {
	var (
		it           domain.QueueItem
		nextEligible sql.NullInt64
		lastShown    sql.NullInt64
	)
	err := row.Scan(
		&it.ID,
		&it.SessionID,
		&it.QuestionID,
		&it.Priority,
		&it.TimesShown,
		&it.TimesCorrect,
		&it.TimesWrong,
		&it.IsMastered,
		&nextEligible,
		&lastShown,
		&it.AvgTimeSeconds,
		&it.Version,
	)
	if err != nil {
		return nil, err
	}
	it.NextEligibleAt = fromNullMillis(nextEligible)
	it.LastShownAt = fromNullMillis(lastShown)
	return &it, nil
}
