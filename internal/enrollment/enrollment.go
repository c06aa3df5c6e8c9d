package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classattend/internal/apperr"
)

// Directory answers course ownership and enrollment questions. Course and
// enrollment bookkeeping live outside this engine; the engine only reads.
type Directory interface {
	// CourseOwner returns the instructor id owning the course, or an
	// apperr.NotFound error.
	CourseOwner(ctx context.Context, courseID string) (string, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
}

// Course is the slice of course state this engine reads.
type Course struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	InstructorID string    `json:"instructor_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository implements Directory against Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CourseOwner returns the owning instructor id.
func (r *Repository) CourseOwner(ctx context.Context, courseID string) (string, error) {
	var owner string
	err := r.db.QueryRowContext(ctx,
		`SELECT instructor_id FROM courses WHERE id = $1`, courseID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.New(apperr.NotFound, "course not found")
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

// IsEnrolled reports whether the student is enrolled in the course.
func (r *Repository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var enrolled bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2
		)
	`, courseID, studentID).Scan(&enrolled)
	return enrolled, err
}

// GetCourse returns a course by id.
func (r *Repository) GetCourse(ctx context.Context, courseID string) (Course, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, code, instructor_id, created_at
		FROM courses WHERE id = $1
	`, courseID)
	var c Course
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.InstructorID, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, apperr.New(apperr.NotFound, "course not found")
		}
		return Course{}, err
	}
	return c, nil
}

// CountEnrolled returns the number of students enrolled in a course.
func (r *Repository) CountEnrolled(ctx context.Context, courseID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE course_id = $1`, courseID).Scan(&n)
	return n, err
}
