package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/geo"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new session.
func (r *Repository) Insert(ctx context.Context, s Session) error {
	var lat, lon, radius sql.NullFloat64
	if s.Geofence != nil {
		lat = sql.NullFloat64{Float64: s.Geofence.Center.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: s.Geofence.Center.Longitude, Valid: true}
		radius = sql.NullFloat64{Float64: s.Geofence.Radius(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions
			(id, course_id, instructor_id, name, fence_lat, fence_lon, fence_radius_m,
			 token, issued_at, expiry_minutes, late_window_minutes,
			 start_time, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, s.ID, s.CourseID, s.InstructorID, s.Name, lat, lon, radius,
		s.Token, s.IssuedAt, s.ExpiryMinutes, s.LateWindowMinutes,
		s.StartTime, s.Active, s.CreatedAt)
	return err
}

// Get returns a session by id.
func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, instructor_id, name, fence_lat, fence_lon, fence_radius_m,
		       token, issued_at, expiry_minutes, late_window_minutes,
		       start_time, end_time, is_active, created_at
		FROM sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

// MarkEnded flips liveness off and stamps the end time.
func (r *Repository) MarkEnded(ctx context.Context, id string, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = FALSE, end_time = $2
		WHERE id = $1 AND is_active
	`, id, endedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.State, "session already ended")
	}
	return nil
}

// ListActive returns an instructor's live sessions, newest first.
func (r *Repository) ListActive(ctx context.Context, instructorID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, instructor_id, name, fence_lat, fence_lon, fence_radius_m,
		       token, issued_at, expiry_minutes, late_window_minutes,
		       start_time, end_time, is_active, created_at
		FROM sessions
		WHERE instructor_id = $1 AND is_active
		ORDER BY start_time DESC
	`, instructorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CountByCourse returns how many sessions a course has had.
func (r *Repository) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE course_id = $1`, courseID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s        Session
		lat, lon sql.NullFloat64
		radius   sql.NullFloat64
		endTime  sql.NullTime
	)
	err := row.Scan(&s.ID, &s.CourseID, &s.InstructorID, &s.Name, &lat, &lon, &radius,
		&s.Token, &s.IssuedAt, &s.ExpiryMinutes, &s.LateWindowMinutes,
		&s.StartTime, &endTime, &s.Active, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return Session{}, err
	}
	if lat.Valid && lon.Valid {
		s.Geofence = &geo.Fence{
			Center:       geo.Point{Latitude: lat.Float64, Longitude: lon.Float64},
			RadiusMeters: radius.Float64,
		}
	}
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	return s, nil
}
