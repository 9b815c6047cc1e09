package domain

import "time"

// SessionStatus is the lifecycle state of a marathon session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusExited    SessionStatus = "exited"
	StatusCompleted SessionStatus = "completed" // never written by the scheduler
)

// Session is one user's run through a chosen set of topics in marathon mode.
type Session struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	TopicIDs          []string      `json:"topic_ids"`
	SubjectID         string        `json:"subject_id,omitempty"`
	TotalQuestions    int           `json:"total_questions"`
	QuestionsAnswered int           `json:"questions_answered"`
	CorrectAnswers    int           `json:"correct_answers"`
	QuestionsMastered int           `json:"questions_mastered"`
	LastQuestionID    string        `json:"last_question_id,omitempty"` // empty when nothing served yet
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// AllMastered reports whether every question in the session has been mastered.
func (s Session) AllMastered() bool {
	return s.TotalQuestions > 0 && s.QuestionsMastered >= s.TotalQuestions
}

// QueueItem is the per-question scheduling record of a session.
type QueueItem struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	QuestionID     string     `json:"question_id"`
	Priority       int        `json:"priority"`
	TimesShown     int        `json:"times_shown"`
	TimesCorrect   int        `json:"times_correct"`
	TimesWrong     int        `json:"times_wrong"`
	IsMastered     bool       `json:"is_mastered"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
	LastShownAt    *time.Time `json:"last_shown_at,omitempty"`
	AvgTimeSeconds int        `json:"avg_time_seconds"`
	Version        int64      `json:"-"`
}

// QueuePatch is the full set of scheduling fields written after an answer.
type QueuePatch struct {
	Priority       int
	TimesCorrect   int
	TimesWrong     int
	IsMastered     bool
	NextEligibleAt *time.Time
	AvgTimeSeconds int
}

// AnswerRecord is one submitted attempt. Records are never mutated.
type AnswerRecord struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	QuestionID       string    `json:"question_id"`
	QueueItemID      string    `json:"queue_item_id"`
	SelectedOption   int       `json:"selected_option"`
	IsCorrect        bool      `json:"is_correct"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	AttemptNumber    int       `json:"attempt_number"`
	SubmissionID     string    `json:"submission_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CorrectAnswer is what the question pool reveals for grading.
type CorrectAnswer struct {
	CorrectOption int
	Explanation   string
}

// Summary aggregates the answer log of a session.
type Summary struct {
	SessionID       string        `json:"session_id"`
	Status          SessionStatus `json:"status"`
	TotalQuestions  int           `json:"total_questions"`
	Mastered        int           `json:"questions_mastered"`
	TotalAttempts   int           `json:"total_attempts"`
	CorrectAttempts int           `json:"correct_attempts"`
	Accuracy        int           `json:"accuracy"`
	AvgTimeSeconds  float64       `json:"avg_time_seconds"`
}
