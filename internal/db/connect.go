package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:assess.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/assess?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  title TEXT NOT NULL,
  attached_kind TEXT NOT NULL DEFAULT '',
  attached_ref TEXT NOT NULL DEFAULT '',
  available_from BIGINT NOT NULL,
  available_until BIGINT NOT NULL,
  lead_time_minutes INTEGER NOT NULL,
  passing_score INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL DEFAULT 0,
  allow_answer_change INTEGER NOT NULL DEFAULT 0,
  show_result_detail INTEGER NOT NULL DEFAULT 0,
  protected INTEGER NOT NULL DEFAULT 0,
  password_hash TEXT NOT NULL DEFAULT '',
  policy TEXT NOT NULL DEFAULT 'all',
  policy_role_id TEXT NOT NULL DEFAULT '',
  creator TEXT NOT NULL,
  editor TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  deleted_at BIGINT
);

CREATE TABLE IF NOT EXISTS quiz_rules (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  variant TEXT NOT NULL,
  ordinal INTEGER NOT NULL,
  question_id TEXT NOT NULL DEFAULT '',
  bank_id TEXT NOT NULL DEFAULT '',
  points INTEGER NOT NULL,
  question_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS quiz_grading_scales (
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  grade INTEGER NOT NULL,
  start_score INTEGER NOT NULL,
  end_score INTEGER NOT NULL,
  PRIMARY KEY (quiz_id, grade)
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id),
  actor_id TEXT NOT NULL,
  status TEXT NOT NULL,
  start_time BIGINT,
  finish_deadline BIGINT,
  finished_at BIGINT,
  score INTEGER NOT NULL DEFAULT 0,
  grade INTEGER NOT NULL DEFAULT 0,
  gradebook_ref TEXT NOT NULL DEFAULT '',
  deleted_at BIGINT
);

-- One live attempt per actor per quiz; racing starts lose here, not in app code.
CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_attempt
  ON quiz_attempts (quiz_id, actor_id)
  WHERE status = 'IN_PROGRESS' AND deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS attempt_questions (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  points INTEGER NOT NULL,
  ordinal INTEGER NOT NULL,
  response_json TEXT NOT NULL DEFAULT '',
  earned INTEGER NOT NULL DEFAULT 0,
  answered INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS quiz_access_grants (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  variant TEXT NOT NULL,
  org_id TEXT NOT NULL DEFAULT '',
  role_id TEXT NOT NULL DEFAULT '',
  card_template_id TEXT NOT NULL DEFAULT '',
  seat_count INTEGER NOT NULL DEFAULT 0,
  filter_json TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  revoked_at BIGINT
);

CREATE TABLE IF NOT EXISTS quiz_grant_users (
  grant_id TEXT NOT NULL REFERENCES quiz_access_grants(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  PRIMARY KEY (grant_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT, -- BIGSERIAL in Postgres
  typ TEXT NOT NULL,                     -- e.g. QuizAccessGranted
  key TEXT NOT NULL,                     -- natural key: quizID/attemptID
  data TEXT NOT NULL,                    -- JSON payload
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS question_banks (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bank_questions (
  id TEXT PRIMARY KEY,
  bank_id TEXT NOT NULL REFERENCES question_banks(id) ON DELETE CASCADE,
  typ TEXT NOT NULL,
  answer_key_json TEXT NOT NULL DEFAULT '[]',
  ordinal INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS org_members (
  org_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  role_id TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (org_id, actor_id)
);

CREATE TABLE IF NOT EXISTS actor_cards (
  actor_id TEXT NOT NULL,
  card_template_id TEXT NOT NULL,
  PRIMARY KEY (actor_id, card_template_id)
);

CREATE TABLE IF NOT EXISTS gradebook_entries (
  id TEXT PRIMARY KEY,
  actor_id TEXT NOT NULL,
  lesson_id TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE (actor_id, lesson_id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  title TEXT NOT NULL,
  attached_kind TEXT NOT NULL DEFAULT '',
  attached_ref TEXT NOT NULL DEFAULT '',
  available_from BIGINT NOT NULL,
  available_until BIGINT NOT NULL,
  lead_time_minutes INTEGER NOT NULL,
  passing_score INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL DEFAULT 0,
  allow_answer_change INTEGER NOT NULL DEFAULT 0,
  show_result_detail INTEGER NOT NULL DEFAULT 0,
  protected INTEGER NOT NULL DEFAULT 0,
  password_hash TEXT NOT NULL DEFAULT '',
  policy TEXT NOT NULL DEFAULT 'all',
  policy_role_id TEXT NOT NULL DEFAULT '',
  creator TEXT NOT NULL,
  editor TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  deleted_at BIGINT
);

CREATE TABLE IF NOT EXISTS quiz_rules (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  variant TEXT NOT NULL,
  ordinal INTEGER NOT NULL,
  question_id TEXT NOT NULL DEFAULT '',
  bank_id TEXT NOT NULL DEFAULT '',
  points INTEGER NOT NULL,
  question_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS quiz_grading_scales (
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  grade INTEGER NOT NULL,
  start_score INTEGER NOT NULL,
  end_score INTEGER NOT NULL,
  PRIMARY KEY (quiz_id, grade)
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id),
  actor_id TEXT NOT NULL,
  status TEXT NOT NULL,
  start_time BIGINT,
  finish_deadline BIGINT,
  finished_at BIGINT,
  score INTEGER NOT NULL DEFAULT 0,
  grade INTEGER NOT NULL DEFAULT 0,
  gradebook_ref TEXT NOT NULL DEFAULT '',
  deleted_at BIGINT
);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_attempt
  ON quiz_attempts (quiz_id, actor_id)
  WHERE status = 'IN_PROGRESS' AND deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS attempt_questions (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  points INTEGER NOT NULL,
  ordinal INTEGER NOT NULL,
  response_json TEXT NOT NULL DEFAULT '',
  earned INTEGER NOT NULL DEFAULT 0,
  answered INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS quiz_access_grants (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  variant TEXT NOT NULL,
  org_id TEXT NOT NULL DEFAULT '',
  role_id TEXT NOT NULL DEFAULT '',
  card_template_id TEXT NOT NULL DEFAULT '',
  seat_count INTEGER NOT NULL DEFAULT 0,
  filter_json TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  revoked_at BIGINT
);

CREATE TABLE IF NOT EXISTS quiz_grant_users (
  grant_id TEXT NOT NULL REFERENCES quiz_access_grants(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  PRIMARY KEY (grant_id, user_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS question_banks (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bank_questions (
  id TEXT PRIMARY KEY,
  bank_id TEXT NOT NULL REFERENCES question_banks(id) ON DELETE CASCADE,
  typ TEXT NOT NULL,
  answer_key_json TEXT NOT NULL DEFAULT '[]',
  ordinal INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS org_members (
  org_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  role_id TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (org_id, actor_id)
);

CREATE TABLE IF NOT EXISTS actor_cards (
  actor_id TEXT NOT NULL,
  card_template_id TEXT NOT NULL,
  PRIMARY KEY (actor_id, card_template_id)
);

CREATE TABLE IF NOT EXISTS gradebook_entries (
  id TEXT PRIMARY KEY,
  actor_id TEXT NOT NULL,
  lesson_id TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE (actor_id, lesson_id)
);
`
