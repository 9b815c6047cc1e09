package storage

import "fmt"

// schema returns the DDL for driver. Timestamps are unix milliseconds and
// booleans are 0/1 integers so the same queries work on SQLite and Postgres.
func schema(driver string) []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == DriverPostgres {
		serial = "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}

	return []string{
		// The 'sources' table tracks where questions are imported from, either a local directory or a git repository.
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sources (
    id %s,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned BIGINT
);`, serial),

		// The 'questions' table is the question bank; ids are content hashes.
		`CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    topic_id TEXT NOT NULL,
    prompt TEXT NOT NULL,
    options TEXT NOT NULL,
    correct_option INTEGER NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    source_id BIGINT,
    is_active INTEGER NOT NULL DEFAULT 1,
    updated_at BIGINT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_questions_topic_active ON questions(topic_id, is_active);`,
		`CREATE INDEX IF NOT EXISTS idx_questions_source ON questions(source_id);`,

		`CREATE TABLE IF NOT EXISTS marathon_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    topic_ids TEXT NOT NULL,
    subject_id TEXT,
    total_questions INTEGER NOT NULL DEFAULT 0,
    questions_answered INTEGER NOT NULL DEFAULT 0,
    correct_answers INTEGER NOT NULL DEFAULT 0,
    questions_mastered INTEGER NOT NULL DEFAULT 0,
    last_question_id TEXT,
    status TEXT NOT NULL DEFAULT 'active', -- active, exited, completed
    created_at BIGINT NOT NULL,
    completed_at BIGINT
);`,
		`CREATE INDEX IF NOT EXISTS idx_marathon_sessions_user ON marathon_sessions(user_id, created_at);`,

		// One row per question per session; membership is fixed at creation.
		`CREATE TABLE IF NOT EXISTS queue_items (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES marathon_sessions(id) ON DELETE CASCADE,
    question_id TEXT NOT NULL,
    priority INTEGER NOT NULL,
    times_shown INTEGER NOT NULL DEFAULT 0,
    times_correct INTEGER NOT NULL DEFAULT 0,
    times_wrong INTEGER NOT NULL DEFAULT 0,
    is_mastered INTEGER NOT NULL DEFAULT 0,
    next_eligible_at BIGINT,
    last_shown_at BIGINT,
    avg_time_seconds INTEGER NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 0,
    UNIQUE (session_id, question_id)
);`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_eligible ON queue_items(session_id, is_mastered, priority);`,

		// Append-only answer log.
		`CREATE TABLE IF NOT EXISTS answer_records (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES marathon_sessions(id) ON DELETE CASCADE,
    question_id TEXT NOT NULL,
    queue_item_id TEXT NOT NULL,
    selected_option INTEGER NOT NULL,
    is_correct INTEGER NOT NULL,
    time_taken_seconds INTEGER NOT NULL DEFAULT 0,
    attempt_number INTEGER NOT NULL,
    submission_id TEXT,
    created_at BIGINT NOT NULL,
    UNIQUE (session_id, question_id, attempt_number),
    UNIQUE (session_id, submission_id)
);`,
	}
}
