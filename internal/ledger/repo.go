package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"classattend/internal/apperr"
	"classattend/internal/geo"
	"classattend/internal/session"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint hit.
const uniqueViolation = "23505"

// Repository persists attendance records in Postgres. The
// attendance_records table carries UNIQUE (session_id, student_id), so
// the duplicate check and the write are one atomic statement.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a record. A second record for the same (session, student)
// pair fails with apperr.Conflict via the unique constraint, regardless of
// any earlier Exists read.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	var lat, lon sql.NullFloat64
	if rec.Location != nil {
		lat = sql.NullFloat64{Float64: rec.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: rec.Location.Longitude, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records
			(id, session_id, student_id, course_id, marked_at, loc_lat, loc_lon, status, evidence_ref)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.ID, rec.SessionID, rec.StudentID, rec.CourseID, rec.MarkedAt,
		lat, lon, string(rec.Status), nullableString(rec.EvidenceRef))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.New(apperr.Conflict, "attendance already marked for this session")
		}
		return err
	}
	return nil
}

// Exists reports whether the student already holds a record for the
// session. Advisory only: concurrent writers are settled by the unique
// constraint in Insert.
func (r *Repository) Exists(ctx context.Context, sessionID, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM attendance_records WHERE session_id = $1 AND student_id = $2
		)
	`, sessionID, studentID).Scan(&exists)
	return exists, err
}

// ListBySession returns a session's records ordered by submission time.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, course_id, marked_at, loc_lat, loc_lon, status, evidence_ref
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY marked_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListByStudent returns a student's records, optionally scoped to a course.
func (r *Repository) ListByStudent(ctx context.Context, studentID, courseID string) ([]Record, error) {
	query := `
		SELECT id, session_id, student_id, course_id, marked_at, loc_lat, loc_lon, status, evidence_ref
		FROM attendance_records
		WHERE student_id = $1`
	args := []any{studentID}
	if courseID != "" {
		query += ` AND course_id = $2`
		args = append(args, courseID)
	}
	query += ` ORDER BY marked_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// CountByCourse returns per-status counts for a course.
func (r *Repository) CountByCourse(ctx context.Context, courseID string) (map[session.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM attendance_records
		WHERE course_id = $1 GROUP BY status
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[session.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[session.Status(status)] = n
	}
	return counts, rows.Err()
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var res []Record
	for rows.Next() {
		var (
			rec         Record
			lat, lon    sql.NullFloat64
			status      string
			evidenceRef sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.CourseID,
			&rec.MarkedAt, &lat, &lon, &status, &evidenceRef); err != nil {
			return nil, err
		}
		if lat.Valid && lon.Valid {
			rec.Location = &geo.Point{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		rec.Status = session.Status(status)
		rec.EvidenceRef = evidenceRef.String
		res = append(res, rec)
	}
	return res, rows.Err()
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
