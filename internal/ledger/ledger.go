package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"classattend/internal/apperr"
	"classattend/internal/audit"
	"classattend/internal/enrollment"
	"classattend/internal/geo"
	"classattend/internal/metrics"
	"classattend/internal/session"
)

// Record is one student's presence for one session. Written once, never
// mutated. CourseID is denormalized from the session at write time.
type Record struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	StudentID   string         `json:"student_id"`
	CourseID    string         `json:"course_id"`
	MarkedAt    time.Time      `json:"marked_at"`
	Location    *geo.Point     `json:"location,omitempty"`
	Status      session.Status `json:"status"`
	EvidenceRef string         `json:"evidence_ref,omitempty"`
}

// Store persists attendance records. Insert must be atomic against
// concurrent duplicates: a write for an existing (session, student) pair
// returns apperr.Conflict, and under N racing inserts exactly one wins.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	Exists(ctx context.Context, sessionID, studentID string) (bool, error)
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
	ListByStudent(ctx context.Context, studentID, courseID string) ([]Record, error)
}

// Ledger enforces the one-record-per-student-per-session invariant and
// writes classified attendance records.
type Ledger struct {
	store    Store
	sessions *session.Registry
	dir      enrollment.Directory
	log      *audit.Log
	now      func() time.Time
}

// New wires a ledger. now may be nil, defaulting to time.Now.
func New(store Store, sessions *session.Registry, dir enrollment.Directory, log *audit.Log, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, sessions: sessions, dir: dir, log: log, now: now}
}

// SubmitParams carries one student submission.
type SubmitParams struct {
	SessionID   string
	StudentID   string
	Location    *geo.Point
	EvidenceRef string
}

// Submit registers presence for a student, evaluating preconditions in a
// fixed order: session liveness, enrollment, uniqueness, geofence, then
// timing classification. Uniqueness is checked twice: a read before the
// geofence step so a resubmission is reported as a duplicate rather than
// whatever later check it would also fail, and the store's
// (session, student) constraint on the insert itself so racing duplicates
// cannot both land.
func (l *Ledger) Submit(ctx context.Context, p SubmitParams) (Record, error) {
	s, err := l.sessions.Get(ctx, p.SessionID)
	if err != nil {
		return Record{}, err
	}
	now := l.now().UTC()

	if !s.Active || s.TokenExpired(now) {
		l.log.Record(ctx, audit.Event{
			SessionID: s.ID,
			StudentID: p.StudentID,
			Kind:      audit.KindExpiredToken,
			Detail:    "submission against inactive or expired session",
			Location:  p.Location,
		})
		metrics.Rejections.WithLabelValues(string(apperr.State)).Inc()
		return Record{}, apperr.New(apperr.State, "session is no longer accepting submissions")
	}

	enrolled, err := l.dir.IsEnrolled(ctx, s.CourseID, p.StudentID)
	if err != nil {
		return Record{}, fmt.Errorf("enrollment lookup: %w", err)
	}
	if !enrolled {
		metrics.Rejections.WithLabelValues(string(apperr.Authorization)).Inc()
		return Record{}, apperr.New(apperr.Authorization, "not enrolled in this course")
	}

	dup, err := l.store.Exists(ctx, s.ID, p.StudentID)
	if err != nil {
		return Record{}, fmt.Errorf("duplicate lookup: %w", err)
	}
	if dup {
		l.log.Record(ctx, audit.Event{
			SessionID: s.ID,
			StudentID: p.StudentID,
			Kind:      audit.KindDuplicateSubmission,
			Detail:    "attendance already marked for this session",
			Location:  p.Location,
		})
		metrics.Rejections.WithLabelValues(string(apperr.Conflict)).Inc()
		return Record{}, apperr.New(apperr.Conflict, "attendance already marked for this session")
	}

	if s.Geofence != nil && p.Location != nil && !s.Geofence.Contains(*p.Location) {
		dist := geo.DistanceMeters(s.Geofence.Center, *p.Location)
		l.log.Record(ctx, audit.Event{
			SessionID: s.ID,
			StudentID: p.StudentID,
			Kind:      audit.KindLocationMismatch,
			Detail:    fmt.Sprintf("distance: %dm, max allowed: %dm", int(math.Round(dist)), int(s.Geofence.Radius())),
			Location:  p.Location,
		})
		metrics.Rejections.WithLabelValues(string(apperr.Validation)).Inc()
		return Record{}, apperr.New(apperr.Validation, "location verification failed")
	}

	status := session.Classify(now, s.StartTime, s.LateWindow())
	if status == session.StatusAbsent {
		// Past the late window submissions are refused; absence is
		// inferred later from the missing record.
		l.log.Record(ctx, audit.Event{
			SessionID: s.ID,
			StudentID: p.StudentID,
			Kind:      audit.KindExpiredToken,
			Detail:    "submission past the attendance window",
			Location:  p.Location,
		})
		metrics.Rejections.WithLabelValues(string(apperr.State)).Inc()
		return Record{}, apperr.New(apperr.State, "attendance window closed")
	}

	rec := Record{
		ID:          uuid.NewString(),
		SessionID:   s.ID,
		StudentID:   p.StudentID,
		CourseID:    s.CourseID,
		MarkedAt:    now,
		Location:    p.Location,
		Status:      status,
		EvidenceRef: p.EvidenceRef,
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			l.log.Record(ctx, audit.Event{
				SessionID: s.ID,
				StudentID: p.StudentID,
				Kind:      audit.KindDuplicateSubmission,
				Detail:    "attendance already marked for this session",
				Location:  p.Location,
			})
			metrics.Rejections.WithLabelValues(string(apperr.Conflict)).Inc()
		}
		return Record{}, err
	}
	metrics.Submissions.WithLabelValues(string(status)).Inc()
	return rec, nil
}

// ListBySession returns a session's records for the owning instructor.
func (l *Ledger) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	return l.store.ListBySession(ctx, sessionID)
}

// ListByStudent returns a student's own records, optionally scoped to a
// course.
func (l *Ledger) ListByStudent(ctx context.Context, studentID, courseID string) ([]Record, error) {
	return l.store.ListByStudent(ctx, studentID, courseID)
}
