package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
)

// SessionStore persists marathon sessions and their aggregate counters.
type SessionStore struct {
	db *DB
}

const sessionColumns = `id, user_id, topic_ids, subject_id, total_questions, questions_answered,
	correct_answers, questions_mastered, last_question_id, status, created_at, completed_at`

// Insert stores a new session.
func (s *SessionStore) Insert(ctx context.Context, sess domain.Session) error {
	topics, err := json.Marshal(sess.TopicIDs)
	if err != nil {
		return fmt.Errorf("failed to encode topics for session %s: %w", sess.ID, err)
	}
	_, err = s.db.q(ctx).ExecContext(ctx, `
		INSERT INTO marathon_sessions (id, user_id, topic_ids, subject_id, total_questions, questions_answered,
			correct_answers, questions_mastered, last_question_id, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		sess.ID,
		sess.UserID,
		string(topics),
		nullString(sess.SubjectID),
		sess.TotalQuestions,
		sess.QuestionsAnswered,
		sess.CorrectAnswers,
		sess.QuestionsMastered,
		nullString(sess.LastQuestionID),
		string(sess.Status),
		toMillis(sess.CreatedAt),
		nullMillis(sess.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	return nil
}

// Get retrieves a session by id. It returns nil, nil when the session does not exist.
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.q(ctx).QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM marathon_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return sess, nil
}

// ListByUser returns a user's sessions, newest first.
func (s *SessionStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	rows, err := s.db.q(ctx).QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM marathon_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// UpdateLastQuestion records the question most recently served.
func (s *SessionStore) UpdateLastQuestion(ctx context.Context, id, questionID string) error {
	res, err := s.db.q(ctx).ExecContext(ctx, `
		UPDATE marathon_sessions SET last_question_id = $1 WHERE id = $2
	`, questionID, id)
	if err != nil {
		return fmt.Errorf("failed to update last question for session %s: %w", id, err)
	}
	return expectRow(res)
}

// IncrementAggregates adds to the session counters in a single statement.
func (s *SessionStore) IncrementAggregates(ctx context.Context, id string, answered, correct, mastered int) error {
	res, err := s.db.q(ctx).ExecContext(ctx, `
		UPDATE marathon_sessions
		SET questions_answered = questions_answered + $1,
			correct_answers = correct_answers + $2,
			questions_mastered = questions_mastered + $3
		WHERE id = $4
	`, answered, correct, mastered, id)
	if err != nil {
		return fmt.Errorf("failed to increment aggregates for session %s: %w", id, err)
	}
	return expectRow(res)
}

// MarkExited moves an active session to exited. It reports false when the
// session was not active.
func (s *SessionStore) MarkExited(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.q(ctx).ExecContext(ctx, `
		UPDATE marathon_sessions
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
	`, string(domain.StatusExited), toMillis(at), id, string(domain.StatusActive))
	if err != nil {
		return false, fmt.Errorf("failed to mark session %s exited: %w", id, err)
	}
	if err := expectRow(res); err != nil {
		if errors.Is(err, ErrNoRowsAffected) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess        domain.Session
		topics      string
		subjectID   sql.NullString
		lastQ       sql.NullString
		status      string
		createdAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&topics,
		&subjectID,
		&sess.TotalQuestions,
		&sess.QuestionsAnswered,
		&sess.CorrectAnswers,
		&sess.QuestionsMastered,
		&lastQ,
		&status,
		&createdAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topics), &sess.TopicIDs); err != nil {
		return nil, fmt.Errorf("failed to decode topics of session %s: %w", sess.ID, err)
	}
	sess.SubjectID = subjectID.String
	sess.LastQuestionID = lastQ.String
	sess.Status = domain.SessionStatus(status)
	sess.CreatedAt = fromMillis(createdAt)
	sess.CompletedAt = fromNullMillis(completedAt)
	return &sess, nil
}
