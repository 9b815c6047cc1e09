// Package marathon implements the adaptive practice queue: a per-session
// question order that reacts to answer correctness, avoids immediate
// repeats, holds missed questions back for a while and detects completion.
//
// The Scheduler keeps no state between calls; everything lives in the stores,
// so any number of replicas can serve the same session.
package marathon

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/logger"
)

// QuestionPool resolves question ids and grading data from the question bank.
type QuestionPool interface {
	ListActiveQuestionIDs(ctx context.Context, topicIDs []string) ([]string, error)
	GetCorrectAnswer(ctx context.Context, questionID string) (*domain.CorrectAnswer, error)
}

// QueueStore owns the queue items of every session.
type QueueStore interface {
	InsertMany(ctx context.Context, items []domain.QueueItem) error
	FindEligible(ctx context.Context, sessionID, excludeQuestionID string, now time.Time, limit int) ([]domain.QueueItem, error)
	FindOne(ctx context.Context, sessionID, questionID string) (*domain.QueueItem, error)
	FindByID(ctx context.Context, itemID string) (*domain.QueueItem, error)
	MarkShown(ctx context.Context, itemID string, at time.Time) error
	ApplyOutcome(ctx context.Context, itemID string, version int64, patch domain.QueuePatch) (bool, error)
	CountUnmastered(ctx context.Context, sessionID string) (int, error)
}

// SessionStore owns session aggregates and the last-served marker.
type SessionStore interface {
	Insert(ctx context.Context, s domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	UpdateLastQuestion(ctx context.Context, id, questionID string) error
	IncrementAggregates(ctx context.Context, id string, answered, correct, mastered int) error
	MarkExited(ctx context.Context, id string, at time.Time) (bool, error)
}

// AnswerLog is the append-only attempt history.
type AnswerLog interface {
	NextAttemptNumber(ctx context.Context, sessionID, questionID string) (int, error)
	Append(ctx context.Context, r domain.AnswerRecord) error
	FindBySubmission(ctx context.Context, sessionID, submissionID string) (*domain.AnswerRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]domain.AnswerRecord, error)
}

// TxRunner runs fn in a transaction; store calls made with the ctx passed to
// fn take part in it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores bundles the collaborators of a Scheduler.
type Stores struct {
	Pool     QuestionPool
	Queue    QueueStore
	Sessions SessionStore
	Answers  AnswerLog
	Tx       TxRunner
}

// Config tunes selection and retries.
type Config struct {
	TopK              int // candidates drawn from at random
	MaxUpdateAttempts int // optimistic update retries per answer
	Policy            Policy
}

// DefaultConfig picks among the 10 lowest-priority eligible items.
func DefaultConfig() Config {
	return Config{
		TopK:              10,
		MaxUpdateAttempts: 3,
		Policy:            DefaultPolicy(),
	}
}

// Scheduler runs marathon sessions over the stores it is given. It is safe
// for concurrent use.
type Scheduler struct {
	Stores
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand // nil uses the global source
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRand makes shuffling and top-K picks reproducible.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = r }
}

// New creates a Scheduler with DefaultConfig, the system clock and the global
// random source unless opts say otherwise.
func New(stores Stores, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		Stores: stores,
		cfg:    DefaultConfig(),
		log:    log.With("service", "MarathonScheduler"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.TopK < 1 {
		s.cfg.TopK = 1
	}
	if s.cfg.MaxUpdateAttempts < 1 {
		s.cfg.MaxUpdateAttempts = 1
	}
	return s
}

// StartSession creates a session over the active questions of topicIDs, in a
// uniformly random initial order.
func (s *Scheduler) StartSession(ctx context.Context, userID string, topicIDs []string, subjectID string) (*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	topics := normalizeTopics(topicIDs)
	if len(topics) == 0 {
		return nil, ErrNoTopicsSelected
	}

	ids, err := s.Pool.ListActiveQuestionIDs(ctx, topics)
	if err != nil {
		return nil, classify(err)
	}
	if len(ids) == 0 {
		return nil, ErrNoQuestionsAvailable
	}

	order := make([]string, len(ids))
	copy(order, ids)
	s.shuffle(order)

	now := s.now()
	sess := domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		TopicIDs:       topics,
		SubjectID:      subjectID,
		TotalQuestions: len(order),
		Status:         domain.StatusActive,
		CreatedAt:      now,
	}
	items := make([]domain.QueueItem, len(order))
	for i, qid := range order {
		items[i] = domain.QueueItem{
			ID:         uuid.NewString(),
			SessionID:  sess.ID,
			QuestionID: qid,
			Priority:   i,
		}
	}

	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.Sessions.Insert(ctx, sess); err != nil {
			return err
		}
		return s.Queue.InsertMany(ctx, items)
	})
	if err != nil {
		s.log.Error("Failed to start session", "user_id", userID, "error", err)
		return nil, classify(err)
	}

	s.log.Info("Session started", "session_id", sess.ID, "user_id", userID, "topics", len(topics), "questions", len(order))
	return &sess, nil
}

// NextResult is the outcome of NextQuestion. When Completed is set there is
// nothing to serve right now; AllMastered tells a finished session from one
// whose remaining items are only delay-locked. The session status is left
// active either way; reading a finished session as completed is up to the caller.
type NextResult struct {
	Item        *domain.QueueItem `json:"item,omitempty"`
	Completed   bool              `json:"completed"`
	AllMastered bool              `json:"all_mastered"`
	Pending     int               `json:"pending"`
}

// NextQuestion picks the next item to show.
func (s *Scheduler) NextQuestion(ctx context.Context, sessionID string) (*NextResult, error) {
	var res NextResult
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		sess, err := s.loadSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status == domain.StatusExited {
			return ErrSessionNotActive
		}

		now := s.now()
		candidates, err := s.Queue.FindEligible(ctx, sess.ID, sess.LastQuestionID, now, s.cfg.TopK)
		if err != nil {
			return err
		}

		var pick *domain.QueueItem
		if len(candidates) > 0 {
			pick = &candidates[s.intn(len(candidates))]
		} else if sess.LastQuestionID != "" {
			// The last question may be the only eligible one left.
			last, err := s.Queue.FindOne(ctx, sess.ID, sess.LastQuestionID)
			if err != nil {
				return err
			}
			if last != nil && s.cfg.Policy.Eligible(*last, now) {
				pick = last
			}
		}

		if pick == nil {
			pending, err := s.Queue.CountUnmastered(ctx, sess.ID)
			if err != nil {
				return err
			}
			res.Completed = true
			res.Pending = pending
			res.AllMastered = pending == 0
			if res.AllMastered {
				s.log.Debug("All questions mastered", "session_id", sess.ID)
			}
			return nil
		}

		if err := s.Queue.MarkShown(ctx, pick.ID, now); err != nil {
			return err
		}
		if err := s.Sessions.UpdateLastQuestion(ctx, sess.ID, pick.QuestionID); err != nil {
			return err
		}
		pick.TimesShown++
		pick.LastShownAt = &now
		res.Item = pick
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return &res, nil
}

// AnswerInput is one submitted answer. SubmissionID, when set, makes the
// submission idempotent within the session.
type AnswerInput struct {
	SessionID        string
	ItemID           string
	QuestionID       string
	SelectedOption   int
	TimeTakenSeconds int
	SubmissionID     string
}

// AnswerResult is returned to the learner after an answer.
type AnswerResult struct {
	Correct       bool   `json:"correct"`
	CorrectOption int    `json:"correct_option"`
	Explanation   string `json:"explanation,omitempty"`
	Mastered      bool   `json:"mastered"`
	WillReappear  bool   `json:"will_reappear"`
	AttemptNumber int    `json:"attempt_number"`
	Replayed      bool   `json:"replayed,omitempty"`
}

// errStale signals that the queue item changed between read and write.
var errStale = fmt.Errorf("%w: stale queue item", ErrConflict)

// SubmitAnswer grades an answer and updates the item, the answer log and the
// session counters in one transaction.
func (s *Scheduler) SubmitAnswer(ctx context.Context, in AnswerInput) (*AnswerResult, error) {
	if in.SessionID == "" || in.ItemID == "" || in.QuestionID == "" {
		return nil, fmt.Errorf("%w: session, item and question ids are required", ErrInvalidInput)
	}
	if in.SelectedOption < 0 || in.TimeTakenSeconds < 0 {
		return nil, fmt.Errorf("%w: selected option and time taken must not be negative", ErrInvalidInput)
	}

	for attempt := 1; ; attempt++ {
		res, err := s.submitOnce(ctx, in)
		if errors.Is(err, errStale) && attempt < s.cfg.MaxUpdateAttempts {
			s.log.Debug("Retrying stale answer update", "session_id", in.SessionID, "item_id", in.ItemID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, classify(err)
		}
		return res, nil
	}
}

func (s *Scheduler) submitOnce(ctx context.Context, in AnswerInput) (*AnswerResult, error) {
	var res *AnswerResult
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		sess, err := s.loadSession(ctx, in.SessionID)
		if err != nil {
			return err
		}

		// A retried submission gets its recorded result even after exit.
		if in.SubmissionID != "" {
			prev, err := s.Answers.FindBySubmission(ctx, sess.ID, in.SubmissionID)
			if err != nil {
				return err
			}
			if prev != nil {
				if prev.QueueItemID != in.ItemID || prev.QuestionID != in.QuestionID {
					return fmt.Errorf("%w: submission id %s was used for another question", ErrInvalidInput, in.SubmissionID)
				}
				res, err = s.replay(ctx, prev)
				return err
			}
		}

		if sess.Status == domain.StatusExited {
			return ErrSessionNotActive
		}

		item, err := s.Queue.FindByID(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if item == nil || item.SessionID != sess.ID || item.QuestionID != in.QuestionID {
			return fmt.Errorf("%w: queue item %s for question %s", ErrNotFound, in.ItemID, in.QuestionID)
		}
		answer, err := s.Pool.GetCorrectAnswer(ctx, item.QuestionID)
		if err != nil {
			return err
		}
		if answer == nil {
			return fmt.Errorf("%w: question %s", ErrNotFound, item.QuestionID)
		}

		now := s.now()
		correct := in.SelectedOption == answer.CorrectOption
		patch := s.cfg.Policy.Next(*item, correct, in.TimeTakenSeconds, now)
		applied, err := s.Queue.ApplyOutcome(ctx, item.ID, item.Version, patch)
		if err != nil {
			return err
		}
		if !applied {
			return errStale
		}

		attemptNo, err := s.Answers.NextAttemptNumber(ctx, sess.ID, item.QuestionID)
		if err != nil {
			return err
		}
		err = s.Answers.Append(ctx, domain.AnswerRecord{
			ID:               uuid.NewString(),
			SessionID:        sess.ID,
			QuestionID:       item.QuestionID,
			QueueItemID:      item.ID,
			SelectedOption:   in.SelectedOption,
			IsCorrect:        correct,
			TimeTakenSeconds: in.TimeTakenSeconds,
			AttemptNumber:    attemptNo,
			SubmissionID:     in.SubmissionID,
			CreatedAt:        now,
		})
		if err != nil {
			return err
		}

		becameMastered := patch.IsMastered && !item.IsMastered
		if err := s.Sessions.IncrementAggregates(ctx, sess.ID, 1, boolToInt(correct), boolToInt(becameMastered)); err != nil {
			return err
		}

		res = &AnswerResult{
			Correct:       correct,
			CorrectOption: answer.CorrectOption,
			Explanation:   answer.Explanation,
			Mastered:      patch.IsMastered,
			WillReappear:  !correct,
			AttemptNumber: attemptNo,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// replay rebuilds the result of an already recorded submission.
func (s *Scheduler) replay(ctx context.Context, prev *domain.AnswerRecord) (*AnswerResult, error) {
	answer, err := s.Pool.GetCorrectAnswer(ctx, prev.QuestionID)
	if err != nil {
		return nil, err
	}
	if answer == nil {
		return nil, fmt.Errorf("%w: question %s", ErrNotFound, prev.QuestionID)
	}
	item, err := s.Queue.FindByID(ctx, prev.QueueItemID)
	if err != nil {
		return nil, err
	}
	return &AnswerResult{
		Correct:       prev.IsCorrect,
		CorrectOption: answer.CorrectOption,
		Explanation:   answer.Explanation,
		Mastered:      item != nil && item.IsMastered,
		WillReappear:  !prev.IsCorrect,
		AttemptNumber: prev.AttemptNumber,
		Replayed:      true,
	}, nil
}

// ExitSession ends an active session. Exiting a session that is no longer
// active changes nothing and returns it as is.
func (s *Scheduler) ExitSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var sess *domain.Session
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.loadSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != domain.StatusActive {
			return nil
		}
		now := s.now()
		exited, err := s.Sessions.MarkExited(ctx, sess.ID, now)
		if err != nil {
			return err
		}
		if exited {
			sess.Status = domain.StatusExited
			sess.CompletedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	s.log.Info("Session exited", "session_id", sess.ID, "status", sess.Status)
	return sess, nil
}

// GetSession returns a session.
func (s *Scheduler) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	return sess, nil
}

// GetSummary aggregates the answer log of a session.
func (s *Scheduler) GetSummary(ctx context.Context, sessionID string) (*domain.Summary, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	records, err := s.Answers.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, classify(err)
	}
	summary := Summarize(*sess, records)
	return &summary, nil
}

func (s *Scheduler) loadSession(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Scheduler) shuffle(ids []string) {
	swap := func(i, j int) { ids[i], ids[j] = ids[j], ids[i] }
	if s.rng == nil {
		rand.Shuffle(len(ids), swap)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(ids), swap)
}

func (s *Scheduler) intn(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// normalizeTopics trims blanks and drops duplicates, keeping order.
func normalizeTopics(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
