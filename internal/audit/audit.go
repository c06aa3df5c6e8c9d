package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"classattend/internal/geo"
	"classattend/internal/metrics"
	"classattend/internal/queue"
)

// Kind classifies a suspicious or rejected attempt.
type Kind string

const (
	KindExpiredToken        Kind = "expired_token"
	KindMalformedToken      Kind = "malformed_token"
	KindDuplicateSubmission Kind = "duplicate_submission"
	KindLocationMismatch    Kind = "location_mismatch"
)

// Event is one append-only security log entry. StudentID is empty when the
// attempt failed before an identity was available.
type Event struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	StudentID string     `json:"student_id,omitempty"`
	Kind      Kind       `json:"kind"`
	At        time.Time  `json:"at"`
	Detail    string     `json:"detail"`
	Location  *geo.Point `json:"location,omitempty"`
}

// Store persists security events.
type Store interface {
	Insert(ctx context.Context, e Event) error
	ListBySession(ctx context.Context, sessionID string) ([]Event, error)
}

// Log is the append-only security audit log. Writes are best-effort: the
// audit channel must never fail an already-failing caller operation.
type Log struct {
	store Store
	q     queue.Queue
	now   func() time.Time
}

// NewLog creates a log backed by store. q may be nil; when set, each event
// is also published for the alert worker.
func NewLog(store Store, q queue.Queue) *Log {
	return &Log{store: store, q: q, now: time.Now}
}

// Record appends an event. Insert or publish failures are logged locally
// and never propagated.
func (l *Log) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = l.now().UTC()
	}
	metrics.SecurityEvents.WithLabelValues(string(e.Kind)).Inc()
	if err := l.store.Insert(ctx, e); err != nil {
		log.Printf("audit: insert failed (kind=%s session=%s): %v", e.Kind, e.SessionID, err)
	}
	if l.q != nil {
		body, err := json.Marshal(e)
		if err == nil {
			err = l.q.Publish(ctx, queue.Message{Type: "security_event", Body: body})
		}
		if err != nil {
			log.Printf("audit: alert publish failed: %v", err)
		}
	}
}

// List returns a session's events ordered by timestamp ascending.
func (l *Log) List(ctx context.Context, sessionID string) ([]Event, error) {
	return l.store.ListBySession(ctx, sessionID)
}
