package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classattend/internal/apperr"
	"classattend/internal/audit"
	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/enrollment"
	"classattend/internal/geo"
	"classattend/internal/ledger"
	"classattend/internal/metrics"
	"classattend/internal/report"
	"classattend/internal/session"
)

// Handler bundles the engine services behind the HTTP surface.
type Handler struct {
	sessions *session.Registry
	ledger   *ledger.Ledger
	auditLog *audit.Log
	reports  *report.Service
	courses  enrollment.Directory
	cloud    *cloudinary.Client // nil if Cloudinary not configured
}

// New creates a handler.
func New(sessions *session.Registry, l *ledger.Ledger, auditLog *audit.Log, reports *report.Service, courses enrollment.Directory, cloud *cloudinary.Client) *Handler {
	return &Handler{sessions: sessions, ledger: l, auditLog: auditLog, reports: reports, courses: courses, cloud: cloud}
}

func respondErr(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("api: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	var ae *apperr.Error
	msg := err.Error()
	if errors.As(err, &ae) {
		msg = ae.Msg
	}
	c.JSON(status, gin.H{"error": msg, "kind": string(apperr.KindOf(err))})
}

type locationBody struct {
	Latitude  float64  `json:"latitude" binding:"required"`
	Longitude float64  `json:"longitude" binding:"required"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

func (l *locationBody) point() *geo.Point {
	if l == nil {
		return nil
	}
	return &geo.Point{Latitude: l.Latitude, Longitude: l.Longitude}
}

// ---------- Sessions ----------

type createSessionRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Geofence *struct {
		Latitude     float64 `json:"latitude"`
		Longitude    float64 `json:"longitude"`
		RadiusMeters float64 `json:"radius_meters"`
	} `json:"geofence,omitempty"`
	ExpiryMinutes     int `json:"expiry_minutes" binding:"required"`
	LateWindowMinutes int `json:"late_window_minutes"`
}

// CreateSession opens a session for a course the caller teaches and
// returns the scannable token along with the session.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params := session.CreateParams{
		CourseID:          req.CourseID,
		InstructorID:      auth.CallerClaims(c).Subject,
		Name:              req.Name,
		ExpiryMinutes:     req.ExpiryMinutes,
		LateWindowMinutes: req.LateWindowMinutes,
	}
	if req.Geofence != nil {
		params.Geofence = &geo.Fence{
			Center:       geo.Point{Latitude: req.Geofence.Latitude, Longitude: req.Geofence.Longitude},
			RadiusMeters: req.Geofence.RadiusMeters,
		}
	}
	s, err := h.sessions.Create(c.Request.Context(), params)
	if err != nil {
		respondErr(c, err)
		return
	}
	metrics.SessionsCreated.Inc()
	c.JSON(http.StatusCreated, s)
}

// EndSession flips a session inactive. Owner only; ending twice fails.
func (h *Handler) EndSession(c *gin.Context) {
	err := h.sessions.End(c.Request.Context(), c.Param("id"), auth.CallerClaims(c).Subject)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

// ListActiveSessions returns the caller's live sessions.
func (h *Handler) ListActiveSessions(c *gin.Context) {
	sessions, err := h.sessions.ListActive(c.Request.Context(), auth.CallerClaims(c).Subject)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ownedSession loads a session and enforces caller ownership.
func (h *Handler) ownedSession(c *gin.Context) (session.Session, bool) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return session.Session{}, false
	}
	if s.InstructorID != auth.CallerClaims(c).Subject {
		respondErr(c, apperr.New(apperr.Authorization, "caller does not own this session"))
		return session.Session{}, false
	}
	return s, true
}

// ListSessionAttendance returns a session's records for its owner.
func (h *Handler) ListSessionAttendance(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}
	records, err := h.ledger.ListBySession(c.Request.Context(), s.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ListSecurityEvents returns a session's audit trail for its owner,
// ordered by timestamp.
func (h *Handler) ListSecurityEvents(c *gin.Context) {
	s, ok := h.ownedSession(c)
	if !ok {
		return
	}
	events, err := h.auditLog.List(c.Request.Context(), s.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ---------- Tokens ----------

type resolveTokenRequest struct {
	Token    string        `json:"token" binding:"required"`
	Location *locationBody `json:"location,omitempty"`
}

// ResolveToken checks a scanned token against live session state.
func (h *Handler) ResolveToken(c *gin.Context) {
	var req resolveTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.sessions.ResolveToken(c.Request.Context(), req.Token, req.Location.point())
	if err != nil {
		respondErr(c, err)
		return
	}
	if !res.Valid {
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": res.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"session_id": res.Session.ID,
		"course_id":  res.Session.CourseID,
		"name":       res.Session.Name,
	})
}

// ---------- Attendance ----------

type submitAttendanceRequest struct {
	SessionID   string        `json:"session_id" binding:"required"`
	Location    *locationBody `json:"location,omitempty"`
	EvidenceRef string        `json:"evidence_ref,omitempty"`
}

// SubmitAttendance registers the calling student's presence.
func (h *Handler) SubmitAttendance(c *gin.Context) {
	var req submitAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.ledger.Submit(c.Request.Context(), ledger.SubmitParams{
		SessionID:   req.SessionID,
		StudentID:   auth.CallerClaims(c).Subject,
		Location:    req.Location.point(),
		EvidenceRef: req.EvidenceRef,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": rec.Status, "marked_at": rec.MarkedAt})
}

// MyAttendance returns the calling student's own records.
func (h *Handler) MyAttendance(c *gin.Context) {
	records, err := h.ledger.ListByStudent(c.Request.Context(),
		auth.CallerClaims(c).Subject, c.Query("course_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ---------- Reports ----------

// CourseStats returns course-wide attendance stats for the owning
// instructor.
func (h *Handler) CourseStats(c *gin.Context) {
	courseID := c.Param("id")
	owner, err := h.courses.CourseOwner(c.Request.Context(), courseID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if owner != auth.CallerClaims(c).Subject {
		respondErr(c, apperr.New(apperr.Authorization, "caller does not own this course"))
		return
	}
	stats, err := h.reports.ForCourse(c.Request.Context(), courseID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// MyCourseStats returns the calling student's stats for a course they are
// enrolled in.
func (h *Handler) MyCourseStats(c *gin.Context) {
	courseID := c.Param("id")
	studentID := auth.CallerClaims(c).Subject
	enrolled, err := h.courses.IsEnrolled(c.Request.Context(), courseID, studentID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !enrolled {
		respondErr(c, apperr.New(apperr.Authorization, "not enrolled in this course"))
		return
	}
	stats, err := h.reports.ForStudent(c.Request.Context(), courseID, studentID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ---------- Evidence upload ----------

// UploadEvidence uploads a captured image and returns the opaque
// reference callers pass back as evidence_ref.
func (h *Handler) UploadEvidence(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}

	var result *cloudinary.UploadResult
	var err error

	switch {
	case strings.Contains(c.ContentType(), "multipart/form-data"):
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}
		result, err = h.cloud.UploadBytes(data, header.Filename)

	default:
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
			return
		}
		result, err = h.cloud.UploadBase64(body.Data)
	}

	if err != nil {
		log.Printf("cloudinary upload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"evidence_ref": result.PublicID,
		"url":          result.SecureURL,
		"bytes":        result.Bytes,
	})
}
