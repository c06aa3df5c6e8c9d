package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/apperr"
	"classattend/internal/audit"
	"classattend/internal/auth"
	"classattend/internal/codec"
	"classattend/internal/ledger"
	"classattend/internal/report"
	"classattend/internal/session"
)

const signingKey = "test-signing-key"

// ---- in-memory fakes ----

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

func (m *memSessions) Insert(_ context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return session.Session{}, apperr.New(apperr.NotFound, "session not found")
	}
	return s, nil
}

func (m *memSessions) MarkEnded(_ context.Context, id string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return apperr.New(apperr.NotFound, "session not found")
	}
	s.Active = false
	s.EndTime = &endedAt
	m.sessions[id] = s
	return nil
}

func (m *memSessions) ListActive(_ context.Context, instructorID string) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []session.Session
	for _, s := range m.sessions {
		if s.Active && s.InstructorID == instructorID {
			res = append(res, s)
		}
	}
	return res, nil
}

func (m *memSessions) CountByCourse(_ context.Context, courseID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

type memRecords struct {
	mu      sync.Mutex
	byPair  map[[2]string]ledger.Record
	ordered []ledger.Record
}

func (m *memRecords) Insert(_ context.Context, rec ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{rec.SessionID, rec.StudentID}
	if _, exists := m.byPair[key]; exists {
		return apperr.New(apperr.Conflict, "attendance already marked for this session")
	}
	m.byPair[key] = rec
	m.ordered = append(m.ordered, rec)
	return nil
}

func (m *memRecords) Exists(_ context.Context, sessionID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPair[[2]string{sessionID, studentID}]
	return ok, nil
}

func (m *memRecords) ListBySession(_ context.Context, sessionID string) ([]ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []ledger.Record
	for _, rec := range m.ordered {
		if rec.SessionID == sessionID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (m *memRecords) ListByStudent(_ context.Context, studentID, courseID string) ([]ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []ledger.Record
	for _, rec := range m.ordered {
		if rec.StudentID == studentID && (courseID == "" || rec.CourseID == courseID) {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (m *memRecords) CountByCourse(_ context.Context, courseID string) (map[session.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[session.Status]int)
	for _, rec := range m.ordered {
		if rec.CourseID == courseID {
			counts[rec.Status]++
		}
	}
	return counts, nil
}

type memDirectory struct {
	owners   map[string]string
	enrolled map[[2]string]bool
}

func (d *memDirectory) CourseOwner(_ context.Context, courseID string) (string, error) {
	owner, ok := d.owners[courseID]
	if !ok {
		return "", apperr.New(apperr.NotFound, "course not found")
	}
	return owner, nil
}

func (d *memDirectory) IsEnrolled(_ context.Context, courseID, studentID string) (bool, error) {
	return d.enrolled[[2]string{courseID, studentID}], nil
}

func (d *memDirectory) CountEnrolled(_ context.Context, courseID string) (int, error) {
	n := 0
	for key, ok := range d.enrolled {
		if ok && key[0] == courseID {
			n++
		}
	}
	return n, nil
}

type memAuditStore struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memAuditStore) Insert(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memAuditStore) ListBySession(_ context.Context, sessionID string) ([]audit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []audit.Event
	for _, e := range m.events {
		if e.SessionID == sessionID {
			res = append(res, e)
		}
	}
	return res, nil
}

// ---- harness ----

type harness struct {
	router   *gin.Engine
	sessions *memSessions
	records  *memRecords
	auditing *memAuditStore
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		sessions: &memSessions{sessions: make(map[string]session.Session)},
		records:  &memRecords{byPair: make(map[[2]string]ledger.Record)},
		auditing: &memAuditStore{},
		now:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	dir := &memDirectory{
		owners: map[string]string{"course-1": "teacher-1"},
		enrolled: map[[2]string]bool{
			{"course-1", "student-1"}: true,
		},
	}
	clock := func() time.Time { return h.now }
	auditLog := audit.NewLog(h.auditing, nil)
	registry := session.NewRegistry(h.sessions, codec.New("token-key", "classattend"), dir, auditLog, clock)
	led := ledger.New(h.records, registry, dir, auditLog, clock)
	reports := report.NewService(h.sessions, h.records, dir)

	handler := New(registry, led, auditLog, reports, dir, nil)

	r := gin.New()
	r.POST("/v1/tokens/resolve", handler.ResolveToken)
	authed := r.Group("/v1", auth.Bearer(signingKey, "classattend"))
	instructor := authed.Group("", auth.RequireRole(auth.RoleInstructor))
	instructor.POST("/sessions", handler.CreateSession)
	instructor.POST("/sessions/:id/end", handler.EndSession)
	instructor.GET("/sessions/active", handler.ListActiveSessions)
	instructor.GET("/sessions/:id/attendance", handler.ListSessionAttendance)
	instructor.GET("/sessions/:id/security-events", handler.ListSecurityEvents)
	instructor.GET("/courses/:id/stats", handler.CourseStats)
	student := authed.Group("", auth.RequireRole(auth.RoleStudent))
	student.POST("/attendance", handler.SubmitAttendance)
	student.GET("/attendance/mine", handler.MyAttendance)
	student.GET("/courses/:id/my-stats", handler.MyCourseStats)

	h.router = r
	return h
}

func bearer(t *testing.T, subject, role string) string {
	t.Helper()
	token, _, err := auth.Issue(subject, role, "classattend", signingKey, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func (h *harness) do(t *testing.T, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) createSession(t *testing.T, body map[string]any) session.Session {
	t.Helper()
	if body == nil {
		body = map[string]any{
			"course_id":      "course-1",
			"name":           "Lecture 1",
			"expiry_minutes": 30,
		}
	}
	w := h.do(t, http.MethodPost, "/v1/sessions", bearer(t, "teacher-1", auth.RoleInstructor), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s session.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return s
}

// ---- tests ----

func TestCreateSession(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)
	assert.NotEmpty(t, s.Token)
	assert.True(t, s.Active)
}

func TestCreateSession_RequiresInstructorRole(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/v1/sessions", bearer(t, "student-1", auth.RoleStudent), map[string]any{
		"course_id": "course-1", "name": "x", "expiry_minutes": 30,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateSession_Unauthenticated(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/v1/sessions", "", map[string]any{
		"course_id": "course-1", "name": "x", "expiry_minutes": 30,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEndSession_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)

	w := h.do(t, http.MethodPost, "/v1/sessions/"+s.ID+"/end", bearer(t, "teacher-2", auth.RoleInstructor), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodPost, "/v1/sessions/"+s.ID+"/end", bearer(t, "teacher-1", auth.RoleInstructor), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Re-ending is a lifecycle violation.
	w = h.do(t, http.MethodPost, "/v1/sessions/"+s.ID+"/end", bearer(t, "teacher-1", auth.RoleInstructor), nil)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestResolveToken(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)

	w := h.do(t, http.MethodPost, "/v1/tokens/resolve", "", map[string]any{"token": s.Token})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Valid     bool   `json:"valid"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, s.ID, res.SessionID)
}

func TestResolveToken_Expired(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)
	h.now = h.now.Add(31 * time.Minute)

	w := h.do(t, http.MethodPost, "/v1/tokens/resolve", "", map[string]any{"token": s.Token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"expired"`)
}

func TestResolveToken_Malformed(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/v1/tokens/resolve", "", map[string]any{"token": "junk"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"malformed"`)
}

func TestSubmitAttendance(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)
	h.now = h.now.Add(3 * time.Minute)

	w := h.do(t, http.MethodPost, "/v1/attendance", bearer(t, "student-1", auth.RoleStudent),
		map[string]any{"session_id": s.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), string(session.StatusOnTime))

	// Duplicate submission conflicts and leaves a single record.
	w = h.do(t, http.MethodPost, "/v1/attendance", bearer(t, "student-1", auth.RoleStudent),
		map[string]any{"session_id": s.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	records, err := h.records.ListBySession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSubmitAttendance_NotEnrolled(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)

	w := h.do(t, http.MethodPost, "/v1/attendance", bearer(t, "student-2", auth.RoleStudent),
		map[string]any{"session_id": s.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmitAttendance_GeofenceRejection(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, map[string]any{
		"course_id":      "course-1",
		"name":           "Lecture 1",
		"expiry_minutes": 30,
		"geofence": map[string]any{
			"latitude": 12.9716, "longitude": 77.5946, "radius_meters": 100,
		},
	})

	w := h.do(t, http.MethodPost, "/v1/attendance", bearer(t, "student-1", auth.RoleStudent),
		map[string]any{
			"session_id": s.ID,
			"location":   map[string]any{"latitude": 12.97295, "longitude": 77.5946},
		})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	events, err := h.auditing.ListBySession(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindLocationMismatch, events[0].Kind)
}

func TestSubmitAttendance_WindowClosed(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)
	h.now = h.now.Add(20 * time.Minute)

	w := h.do(t, http.MethodPost, "/v1/attendance", bearer(t, "student-1", auth.RoleStudent),
		map[string]any{"session_id": s.ID})
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestListSecurityEvents_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)

	// Produce one event via a duplicate submission.
	for i := 0; i < 2; i++ {
		h.do(t, http.MethodPost, "/v1/attendance", bearer(t, "student-1", auth.RoleStudent),
			map[string]any{"session_id": s.ID})
	}

	w := h.do(t, http.MethodGet, "/v1/sessions/"+s.ID+"/security-events", bearer(t, "teacher-2", auth.RoleInstructor), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(t, http.MethodGet, "/v1/sessions/"+s.ID+"/security-events", bearer(t, "teacher-1", auth.RoleInstructor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(audit.KindDuplicateSubmission))
}

func TestCourseStats(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)
	h.do(t, http.MethodPost, "/v1/attendance", bearer(t, "student-1", auth.RoleStudent),
		map[string]any{"session_id": s.ID})

	w := h.do(t, http.MethodGet, "/v1/courses/course-1/stats", bearer(t, "teacher-1", auth.RoleInstructor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats report.CourseStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.OnTimeCount)
}

func TestMyAttendance(t *testing.T) {
	h := newHarness(t)
	s := h.createSession(t, nil)
	h.do(t, http.MethodPost, "/v1/attendance", bearer(t, "student-1", auth.RoleStudent),
		map[string]any{"session_id": s.ID})

	w := h.do(t, http.MethodGet, "/v1/attendance/mine?course_id=course-1", bearer(t, "student-1", auth.RoleStudent), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf("%q", s.ID))
}
