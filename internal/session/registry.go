package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"classattend/internal/apperr"
	"classattend/internal/audit"
	"classattend/internal/codec"
	"classattend/internal/enrollment"
	"classattend/internal/geo"
)

// Store persists sessions.
type Store interface {
	Insert(ctx context.Context, s Session) error
	// Get returns the session or an apperr.NotFound error.
	Get(ctx context.Context, id string) (Session, error)
	// MarkEnded flips liveness off and stamps the end time.
	MarkEnded(ctx context.Context, id string, endedAt time.Time) error
	ListActive(ctx context.Context, instructorID string) ([]Session, error)
}

// Registry owns the session lifecycle: creation, token issuance,
// liveness, and token resolution.
type Registry struct {
	store Store
	codec *codec.Codec
	dir   enrollment.Directory
	log   *audit.Log
	now   func() time.Time
}

// NewRegistry wires a registry. now may be nil, defaulting to time.Now.
func NewRegistry(store Store, c *codec.Codec, dir enrollment.Directory, log *audit.Log, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, codec: c, dir: dir, log: log, now: now}
}

// CreateParams carries instructor input for a new session.
type CreateParams struct {
	CourseID          string
	InstructorID      string
	Name              string
	Geofence          *geo.Fence
	ExpiryMinutes     int
	LateWindowMinutes int
}

// Create allocates a session, issues its token, and starts it active.
// One token is issued per session, at creation; tokens are not reissued.
func (r *Registry) Create(ctx context.Context, p CreateParams) (Session, error) {
	if p.Name == "" {
		return Session{}, apperr.New(apperr.Validation, "session name required")
	}
	if p.ExpiryMinutes <= 0 {
		return Session{}, apperr.New(apperr.Validation, "expiry minutes must be positive")
	}
	owner, err := r.dir.CourseOwner(ctx, p.CourseID)
	if err != nil {
		return Session{}, err
	}
	if owner != p.InstructorID {
		return Session{}, apperr.New(apperr.Authorization, "caller does not own this course")
	}

	now := r.now().UTC()
	s := Session{
		ID:                uuid.NewString(),
		CourseID:          p.CourseID,
		InstructorID:      p.InstructorID,
		Name:              p.Name,
		Geofence:          p.Geofence,
		IssuedAt:          now,
		ExpiryMinutes:     p.ExpiryMinutes,
		LateWindowMinutes: p.LateWindowMinutes,
		StartTime:         now,
		Active:            true,
		CreatedAt:         now,
	}
	s.Token, err = r.codec.Encode(s.ID, s.IssuedAt)
	if err != nil {
		return Session{}, fmt.Errorf("encode session token: %w", err)
	}
	if err := r.store.Insert(ctx, s); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// End flips liveness off. Only the owning instructor may end a session,
// and ending an already-ended session is a StateError, not a no-op.
func (r *Registry) End(ctx context.Context, sessionID, callerID string) error {
	s, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.InstructorID != callerID {
		return apperr.New(apperr.Authorization, "caller does not own this session")
	}
	if !s.Active {
		return apperr.New(apperr.State, "session already ended")
	}
	return r.store.MarkEnded(ctx, sessionID, r.now().UTC())
}

// Get returns a session by id.
func (r *Registry) Get(ctx context.Context, sessionID string) (Session, error) {
	return r.store.Get(ctx, sessionID)
}

// ListActive returns the instructor's live sessions.
func (r *Registry) ListActive(ctx context.Context, instructorID string) ([]Session, error) {
	return r.store.ListActive(ctx, instructorID)
}

// Resolution is the outcome of resolving a scanned token.
type Resolution struct {
	Valid   bool    `json:"valid"`
	Reason  string  `json:"reason,omitempty"`
	Session Session `json:"-"`
}

// Resolution reasons.
const (
	ReasonMalformed  = "malformed"
	ReasonNotFound   = "not found"
	ReasonEnded      = "ended"
	ReasonExpired    = "expired"
	ReasonOutOfRange = "out of range"
)

// ResolveToken decodes a scanned token and checks it against the live
// session state. Token expiry here is independent of the attendance late
// window: a session can outlive a short-lived token. Security-relevant
// rejections (malformed, expired, out of range) are audited. A non-nil
// error means the lookup itself failed, not that the token is bad.
func (r *Registry) ResolveToken(ctx context.Context, token string, loc *geo.Point) (Resolution, error) {
	payload, err := r.codec.Decode(token)
	if err != nil {
		r.log.Record(ctx, audit.Event{
			Kind:   audit.KindMalformedToken,
			Detail: "token failed structural validation",
		})
		return Resolution{Reason: ReasonMalformed}, nil
	}

	s, err := r.store.Get(ctx, payload.SessionID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return Resolution{Reason: ReasonNotFound}, nil
		}
		return Resolution{}, fmt.Errorf("session lookup: %w", err)
	}
	if !s.Active {
		return Resolution{Reason: ReasonEnded}, nil
	}
	if s.TokenExpired(r.now()) {
		r.log.Record(ctx, audit.Event{
			SessionID: s.ID,
			Kind:      audit.KindExpiredToken,
			Detail: fmt.Sprintf("token issued %s, expiry %dm",
				payload.IssuedAt.UTC().Format(time.RFC3339), s.ExpiryMinutes),
		})
		return Resolution{Reason: ReasonExpired}, nil
	}
	if s.Geofence != nil && loc != nil && !s.Geofence.Contains(*loc) {
		dist := geo.DistanceMeters(s.Geofence.Center, *loc)
		r.log.Record(ctx, audit.Event{
			SessionID: s.ID,
			Kind:      audit.KindLocationMismatch,
			Detail:    fmt.Sprintf("distance: %dm, max allowed: %dm", int(math.Round(dist)), int(s.Geofence.Radius())),
			Location:  loc,
		})
		return Resolution{Reason: ReasonOutOfRange}, nil
	}
	return Resolution{Valid: true, Session: s}, nil
}
