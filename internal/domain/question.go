package domain

import "time"

// Question represents a single multiple-choice entry of the question bank.
type Question struct {
	ID            string   `json:"id"`
	TopicID       string   `json:"topic_id" validate:"required"`
	Prompt        string   `json:"prompt" validate:"required"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectOption int      `json:"-" validate:"gte=0,ltfield=OptionCount"`
	Explanation   string   `json:"explanation,omitempty"`
	OptionCount   int      `json:"-"`
}

// Topic is a question-bank topic with its number of active questions.
type Topic struct {
	ID            string `json:"id"`
	QuestionCount int    `json:"question_count"`
}

// Source is a place questions are imported from, either a local path or a Git URL.
type Source struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        string     `json:"type"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

const (
	SourceLocal = "local"
	SourceGit   = "git"
)
