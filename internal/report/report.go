package report

import (
	"context"
	"math"

	"classattend/internal/ledger"
	"classattend/internal/session"
)

// SessionCounts is the slice of session storage reporting needs.
type SessionCounts interface {
	CountByCourse(ctx context.Context, courseID string) (int, error)
}

// RecordSource is the slice of the attendance ledger reporting needs.
type RecordSource interface {
	CountByCourse(ctx context.Context, courseID string) (map[session.Status]int, error)
	ListByStudent(ctx context.Context, studentID, courseID string) ([]ledger.Record, error)
}

// EnrollmentCounts is the slice of the enrollment directory reporting needs.
type EnrollmentCounts interface {
	CountEnrolled(ctx context.Context, courseID string) (int, error)
}

// Service derives attendance statistics from stored records.
type Service struct {
	sessions SessionCounts
	records  RecordSource
	enroll   EnrollmentCounts
}

// NewService wires a reporting service.
func NewService(sessions SessionCounts, records RecordSource, enroll EnrollmentCounts) *Service {
	return &Service{sessions: sessions, records: records, enroll: enroll}
}

// CourseStats summarizes attendance across a course. Absent counts are
// inferred: total possible submissions minus records actually written.
type CourseStats struct {
	TotalSessions     int     `json:"total_sessions"`
	TotalStudents     int     `json:"total_students"`
	OnTimeCount       int     `json:"on_time_count"`
	LateCount         int     `json:"late_count"`
	AbsentCount       int     `json:"absent_count"`
	AverageAttendance float64 `json:"average_attendance"`
}

// ForCourse computes course-wide stats.
func (s *Service) ForCourse(ctx context.Context, courseID string) (CourseStats, error) {
	totalSessions, err := s.sessions.CountByCourse(ctx, courseID)
	if err != nil {
		return CourseStats{}, err
	}
	totalStudents, err := s.enroll.CountEnrolled(ctx, courseID)
	if err != nil {
		return CourseStats{}, err
	}
	counts, err := s.records.CountByCourse(ctx, courseID)
	if err != nil {
		return CourseStats{}, err
	}

	onTime := counts[session.StatusOnTime]
	late := counts[session.StatusLate]
	possible := totalSessions * totalStudents

	stats := CourseStats{
		TotalSessions: totalSessions,
		TotalStudents: totalStudents,
		OnTimeCount:   onTime,
		LateCount:     late,
		AbsentCount:   possible - onTime - late,
	}
	if possible > 0 {
		stats.AverageAttendance = round2(float64(onTime+late) / float64(possible) * 100)
	}
	return stats, nil
}

// StudentStats summarizes one student's attendance in a course.
type StudentStats struct {
	TotalSessions        int     `json:"total_sessions"`
	AttendedSessions     int     `json:"attended_sessions"`
	MissedSessions       int     `json:"missed_sessions"`
	OnTimeCount          int     `json:"on_time_count"`
	LateCount            int     `json:"late_count"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// ForStudent computes one student's stats within a course.
func (s *Service) ForStudent(ctx context.Context, courseID, studentID string) (StudentStats, error) {
	totalSessions, err := s.sessions.CountByCourse(ctx, courseID)
	if err != nil {
		return StudentStats{}, err
	}
	records, err := s.records.ListByStudent(ctx, studentID, courseID)
	if err != nil {
		return StudentStats{}, err
	}

	stats := StudentStats{
		TotalSessions:    totalSessions,
		AttendedSessions: len(records),
		MissedSessions:   totalSessions - len(records),
	}
	for _, rec := range records {
		switch rec.Status {
		case session.StatusOnTime:
			stats.OnTimeCount++
		case session.StatusLate:
			stats.LateCount++
		}
	}
	if totalSessions > 0 {
		stats.AttendancePercentage = round2(float64(len(records)) / float64(totalSessions) * 100)
	}
	return stats, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
