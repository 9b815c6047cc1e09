package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/examprep/internal/domain"
)

// QuestionStore is the question bank. It also serves as the question pool
// the marathon scheduler draws from.
type QuestionStore struct {
	db *DB
}

// ListActiveQuestionIDs returns the ids of active questions in any of topicIDs.
func (s *QuestionStore) ListActiveQuestionIDs(ctx context.Context, topicIDs []string) ([]string, error) {
	if len(topicIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(topicIDs))
	marks := make([]string, len(topicIDs))
	for i, id := range topicIDs {
		args[i] = id
		marks[i] = fmt.Sprintf("$%d", i+1)
	}

	rows, err := s.db.q(ctx).QueryContext(ctx, `
		SELECT id FROM questions
		WHERE is_active = 1 AND topic_id IN (`+strings.Join(marks, ", ")+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions for topics %v: %w", topicIDs, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetCorrectAnswer returns the grading data of a question, or nil, nil.
func (s *QuestionStore) GetCorrectAnswer(ctx context.Context, questionID string) (*domain.CorrectAnswer, error) {
	var ca domain.CorrectAnswer
	err := s.db.q(ctx).QueryRowContext(ctx, `
		SELECT correct_option, explanation FROM questions WHERE id = $1
	`, questionID).Scan(&ca.CorrectOption, &ca.Explanation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get answer for question %s: %w", questionID, err)
	}
	return &ca, nil
}

// Get retrieves a question by id, or nil, nil.
func (s *QuestionStore) Get(ctx context.Context, id string) (*domain.Question, error) {
	var (
		q       domain.Question
		options string
	)
	err := s.db.q(ctx).QueryRowContext(ctx, `
		SELECT id, topic_id, prompt, options, correct_option, explanation FROM questions WHERE id = $1
	`, id).Scan(&q.ID, &q.TopicID, &q.Prompt, &options, &q.CorrectOption, &q.Explanation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get question %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options of question %s: %w", id, err)
	}
	q.OptionCount = len(q.Options)
	return &q, nil
}

// Upsert inserts a question or refreshes an existing one, marking it active
// and attributing it to sourceID.
func (s *QuestionStore) Upsert(ctx context.Context, q domain.Question, sourceID int64) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options of question %s: %w", q.ID, err)
	}
	_, err = s.db.q(ctx).ExecContext(ctx, `
		INSERT INTO questions (id, topic_id, prompt, options, correct_option, explanation, source_id, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8)
		ON CONFLICT (id) DO UPDATE SET
			topic_id = excluded.topic_id,
			prompt = excluded.prompt,
			options = excluded.options,
			correct_option = excluded.correct_option,
			explanation = excluded.explanation,
			source_id = excluded.source_id,
			is_active = 1,
			updated_at = excluded.updated_at
	`,
		q.ID,
		q.TopicID,
		q.Prompt,
		string(options),
		q.CorrectOption,
		q.Explanation,
		sourceID,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert question %s: %w", q.ID, err)
	}
	return nil
}

// ListActiveIDsBySource returns the ids of active questions imported from a source.
func (s *QuestionStore) ListActiveIDsBySource(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := s.db.q(ctx).QueryContext(ctx, `
		SELECT id FROM questions WHERE source_id = $1 AND is_active = 1
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan question id for source ID %d: %w", sourceID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Deactivate hides a question from new sessions. Existing queues keep it.
func (s *QuestionStore) Deactivate(ctx context.Context, id string) error {
	_, err := s.db.q(ctx).ExecContext(ctx, `
		UPDATE questions SET is_active = 0, updated_at = $1 WHERE id = $2
	`, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate question %s: %w", id, err)
	}
	return nil
}

// ListTopics returns every topic with at least one active question.
func (s *QuestionStore) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	rows, err := s.db.q(ctx).QueryContext(ctx, `
		SELECT topic_id, COUNT(*) FROM questions
		WHERE is_active = 1
		GROUP BY topic_id
		ORDER BY topic_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var t domain.Topic
		if err := rows.Scan(&t.ID, &t.QuestionCount); err != nil {
			return nil, fmt.Errorf("failed to scan topic row: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
