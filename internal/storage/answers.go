package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/examprep/internal/domain"
)

// AnswerLog is the append-only record of submitted attempts.
type AnswerLog struct {
	db *DB
}

const answerColumns = `id, session_id, question_id, queue_item_id, selected_option, is_correct,
	time_taken_seconds, attempt_number, submission_id, created_at`

// NextAttemptNumber returns 1 + the highest attempt number recorded for the
// (session, question) pair, or 1 if there is none.
func (l *AnswerLog) NextAttemptNumber(ctx context.Context, sessionID, questionID string) (int, error) {
	var n int
	err := l.db.q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(attempt_number), 0) + 1 FROM answer_records
		WHERE session_id = $1 AND question_id = $2
	`, sessionID, questionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to get next attempt number for %s/%s: %w", sessionID, questionID, err)
	}
	return n, nil
}

// Append inserts a record. The unique (session, question, attempt_number)
// constraint rejects a concurrent writer that computed the same number.
func (l *AnswerLog) Append(ctx context.Context, r domain.AnswerRecord) error {
	_, err := l.db.q(ctx).ExecContext(ctx, `
		INSERT INTO answer_records (id, session_id, question_id, queue_item_id, selected_option, is_correct,
			time_taken_seconds, attempt_number, submission_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		r.ID,
		r.SessionID,
		r.QuestionID,
		r.QueueItemID,
		r.SelectedOption,
		boolToInt(r.IsCorrect),
		r.TimeTakenSeconds,
		r.AttemptNumber,
		nullString(r.SubmissionID),
		toMillis(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append answer for %s/%s: %w", r.SessionID, r.QuestionID, err)
	}
	return nil
}

// FindBySubmission returns the record written for a client submission id, or nil, nil.
func (l *AnswerLog) FindBySubmission(ctx context.Context, sessionID, submissionID string) (*domain.AnswerRecord, error) {
	row := l.db.q(ctx).QueryRowContext(ctx, `
		SELECT `+answerColumns+` FROM answer_records WHERE session_id = $1 AND submission_id = $2
	`, sessionID, submissionID)
	r, err := scanAnswer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find submission %s: %w", submissionID, err)
	}
	return r, nil
}

// ListBySession returns every record of a session in submission order.
func (l *AnswerLog) ListBySession(ctx context.Context, sessionID string) ([]domain.AnswerRecord, error) {
	rows, err := l.db.q(ctx).QueryContext(ctx, `
		SELECT `+answerColumns+` FROM answer_records
		WHERE session_id = $1
		ORDER BY created_at ASC, attempt_number ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var records []domain.AnswerRecord
	for rows.Next() {
		r, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer row: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func scanAnswer(row rowScanner) (*domain.AnswerRecord, error) {
	var (
		r            domain.AnswerRecord
		submissionID sql.NullString
		createdAt    int64
	)
	err := row.Scan(
		&r.ID,
		&r.SessionID,
		&r.QuestionID,
		&r.QueueItemID,
		&r.SelectedOption,
		&r.IsCorrect,
		&r.TimeTakenSeconds,
		&r.AttemptNumber,
		&submissionID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.SubmissionID = submissionID.String
	r.CreatedAt = fromMillis(createdAt)
	return &r, nil
}
