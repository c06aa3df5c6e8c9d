package session

import (
	"time"

	"classattend/internal/geo"
)

// Session is a single time-boxed class meeting. Created active by its
// instructor; the only mutation this engine performs afterwards is ending
// it (liveness off, end time stamped). Sessions are never deleted.
type Session struct {
	ID                string     `json:"id"`
	CourseID          string     `json:"course_id"`
	InstructorID      string     `json:"instructor_id"`
	Name              string     `json:"name"`
	Geofence          *geo.Fence `json:"geofence,omitempty"`
	Token             string     `json:"token"`
	IssuedAt          time.Time  `json:"issued_at"`
	ExpiryMinutes     int        `json:"expiry_minutes"`
	LateWindowMinutes int        `json:"late_window_minutes,omitempty"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
}

// LateWindow returns the configured late window, or the default.
func (s Session) LateWindow() time.Duration {
	if s.LateWindowMinutes > 0 {
		return time.Duration(s.LateWindowMinutes) * time.Minute
	}
	return DefaultLateWindow
}

// TokenExpired reports whether the session token has outlived its
// expiry window at the given instant. This is distinct from the late
// window used for attendance classification.
func (s Session) TokenExpired(now time.Time) bool {
	return now.After(s.IssuedAt.Add(time.Duration(s.ExpiryMinutes) * time.Minute))
}
