package audit

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"classattend/internal/geo"
)

// Repository persists security events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends an event. Events are never updated or deleted.
func (r *Repository) Insert(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var lat, lon sql.NullFloat64
	if e.Location != nil {
		lat = sql.NullFloat64{Float64: e.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: e.Location.Longitude, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_events
			(id, session_id, student_id, kind, at, detail, loc_lat, loc_lon)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, nullableString(e.SessionID), nullableString(e.StudentID),
		string(e.Kind), e.At, e.Detail, lat, lon)
	return err
}

// ListBySession returns a session's events ordered by timestamp.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, kind, at, detail, loc_lat, loc_lon
		FROM security_events
		WHERE session_id = $1
		ORDER BY at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Event
	for rows.Next() {
		var (
			e          Event
			sessID     sql.NullString
			student    sql.NullString
			kind       string
			lat, lon   sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &sessID, &student, &kind, &e.At, &e.Detail, &lat, &lon); err != nil {
			return nil, err
		}
		e.SessionID = sessID.String
		e.StudentID = student.String
		e.Kind = Kind(kind)
		if lat.Valid && lon.Valid {
			e.Location = &geo.Point{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
