package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Healthy pings the database.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// schema is applied in order; every statement is safe to re-run.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id          UUID PRIMARY KEY,
		student_id  TEXT NOT NULL UNIQUE,
		first_name  TEXT NOT NULL,
		last_name   TEXT NOT NULL,
		email       TEXT NOT NULL UNIQUE,
		phone       TEXT NOT NULL DEFAULT '',
		department  TEXT NOT NULL DEFAULT '',
		major       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'active',
		semester    INT  NOT NULL DEFAULT 1,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id          UUID PRIMARY KEY,
		code        TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		capacity    INT  NOT NULL DEFAULT 50,
		credits     INT  NOT NULL DEFAULT 3,
		semester    INT  NOT NULL DEFAULT 1,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		course_id   UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		student_id  UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (course_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS recurring_templates (
		id          UUID PRIMARY KEY,
		course_id   UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		start_date  DATE NOT NULL,
		end_date    DATE NOT NULL,
		start_time  TEXT NOT NULL,
		end_time    TEXT NOT NULL,
		frequency   TEXT NOT NULL,
		day_of_week INT  NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
		notes       TEXT NOT NULL DEFAULT '',
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id                  UUID PRIMARY KEY,
		course_id           UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		date                DATE NOT NULL,
		start_time          TEXT,
		end_time            TEXT,
		duration_minutes    INT  NOT NULL DEFAULT 60,
		late_cutoff_minutes INT  NOT NULL DEFAULT 15,
		checkin_code        TEXT,
		notes               TEXT NOT NULL DEFAULT '',
		is_recurring        BOOLEAN NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (course_id, date, start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_course_date ON sessions(course_id, date)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id           UUID PRIMARY KEY,
		session_id   UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		student_id   UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		status       TEXT NOT NULL CHECK (status IN ('present','absent','late','excused')),
		remarks      TEXT NOT NULL DEFAULT '',
		checkin_time TIMESTAMPTZ,
		recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (session_id, student_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_id)`,
	`CREATE TABLE IF NOT EXISTS import_logs (
		id                 UUID PRIMARY KEY,
		course_id          UUID NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		uploaded_by        TEXT,
		file_name          TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'processing',
		total_records      INT  NOT NULL DEFAULT 0,
		successful_imports INT  NOT NULL DEFAULT 0,
		failed_imports     INT  NOT NULL DEFAULT 0,
		error_details      TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at       TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS checkin_events (
		id          UUID PRIMARY KEY,
		record_id   UUID NOT NULL REFERENCES attendance_records(id) ON DELETE CASCADE,
		session_id  UUID NOT NULL,
		student_id  UUID NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL DEFAULT 'recorded',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkin_events_session ON checkin_events(session_id, occurred_at)`,
}

// Migrate creates the schema when missing. It is called once at startup and
// can be run any number of times.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
