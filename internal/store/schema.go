package store

import (
	"database/sql"
	"fmt"
)

// schema statements are applied one at a time: the pgx stdlib driver uses
// the extended protocol, which rejects multi-statement Exec calls.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		code           TEXT NOT NULL,
		instructor_id  TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		course_id   TEXT NOT NULL REFERENCES courses(id),
		student_id  TEXT NOT NULL,
		enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (course_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id                  TEXT PRIMARY KEY,
		course_id           TEXT NOT NULL REFERENCES courses(id),
		instructor_id       TEXT NOT NULL,
		name                TEXT NOT NULL,
		fence_lat           DOUBLE PRECISION,
		fence_lon           DOUBLE PRECISION,
		fence_radius_m      DOUBLE PRECISION,
		token               TEXT NOT NULL,
		issued_at           TIMESTAMPTZ NOT NULL,
		expiry_minutes      INTEGER NOT NULL,
		late_window_minutes INTEGER NOT NULL DEFAULT 0,
		start_time          TIMESTAMPTZ NOT NULL,
		end_time            TIMESTAMPTZ,
		is_active           BOOLEAN NOT NULL DEFAULT TRUE,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_course ON sessions(course_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_instructor ON sessions(instructor_id)`,
	// UNIQUE (session_id, student_id) is load-bearing: it is what makes
	// the duplicate check atomic with the insert.
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL REFERENCES sessions(id),
		student_id   TEXT NOT NULL,
		course_id    TEXT NOT NULL,
		marked_at    TIMESTAMPTZ NOT NULL,
		loc_lat      DOUBLE PRECISION,
		loc_lon      DOUBLE PRECISION,
		status       TEXT NOT NULL,
		evidence_ref TEXT,
		UNIQUE (session_id, student_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_course ON attendance_records(course_id)`,
	`CREATE TABLE IF NOT EXISTS security_events (
		id         TEXT PRIMARY KEY,
		session_id TEXT,
		student_id TEXT,
		kind       TEXT NOT NULL,
		at         TIMESTAMPTZ NOT NULL,
		detail     TEXT NOT NULL DEFAULT '',
		loc_lat    DOUBLE PRECISION,
		loc_lon    DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_security_events_session ON security_events(session_id, at)`,
}

// Migrate applies the schema.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
