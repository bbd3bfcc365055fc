package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
)

const courseColumns = "id, code, name, department_id, description, credits, created_at, updated_at"

// CourseRepository handles database operations for courses
type CourseRepository struct {
	db Querier
}

// NewCourseRepository creates a new CourseRepository
func NewCourseRepository(db Querier) *CourseRepository {
	return &CourseRepository{db: db}
}

func scanCourse(row pgx.Row) (*models.Course, error) {
	var c models.Course
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.DepartmentID, &c.Description, &c.Credits, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetCourseByCode retrieves a course by its natural key
func (r *CourseRepository) GetCourseByCode(ctx context.Context, code string) (*models.Course, error) {
	course, err := scanCourse(r.db.QueryRow(ctx, "SELECT "+courseColumns+" FROM courses WHERE code = $1", code))
	if err != nil {
		return nil, fmt.Errorf("error retrieving course by code: %w", err)
	}
	return course, nil
}

// GetCourseByID retrieves a course by ID
func (r *CourseRepository) GetCourseByID(ctx context.Context, id int64) (*models.Course, error) {
	course, err := scanCourse(r.db.QueryRow(ctx, "SELECT "+courseColumns+" FROM courses WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("error retrieving course: %w", err)
	}
	return course, nil
}

// CreateCourse inserts a course. A concurrent insert of the same code fails with a
// unique violation on ConstraintCourseCode, which is returned wrapped.
func (r *CourseRepository) CreateCourse(ctx context.Context, course *models.Course) error {
	query := `
		INSERT INTO courses (code, name, department_id, description, credits)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, course.Code, course.Name, course.DepartmentID, course.Description, course.Credits).
		Scan(&course.ID, &course.CreatedAt, &course.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating course: %w", err)
	}
	return nil
}

// RenameCourse changes the display name of a course
func (r *CourseRepository) RenameCourse(ctx context.Context, id int64, name string) error {
	tag, err := r.db.Exec(ctx, `UPDATE courses SET name = $1, updated_at = NOW() WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("error renaming course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
