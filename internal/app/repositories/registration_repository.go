package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/pkg/helpers"
)

const registrationColumns = "id, student_id, offering_id, course_id, created_at"

// RegistrationRepository handles database operations for offering registrations
type RegistrationRepository struct {
	db Querier
}

// NewRegistrationRepository creates a new RegistrationRepository
func NewRegistrationRepository(db Querier) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	if err := row.Scan(&reg.ID, &reg.StudentID, &reg.OfferingID, &reg.CourseID, &reg.CreatedAt); err != nil {
		return nil, err
	}
	return &reg, nil
}

// CreateRegistration inserts a registration. Duplicates surface as unique violations on
// the student/course or student/offering constraints.
func (r *RegistrationRepository) CreateRegistration(ctx context.Context, registration *models.Registration) error {
	query := `
		INSERT INTO registrations (student_id, offering_id, course_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, registration.StudentID, registration.OfferingID, registration.CourseID).
		Scan(&registration.ID, &registration.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating registration: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) getOne(ctx context.Context, query string, id int64) (*models.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving registration: %w", err)
	}
	return reg, nil
}

// GetRegistrationByID retrieves a registration by ID
func (r *RegistrationRepository) GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error) {
	return r.getOne(ctx, "SELECT "+registrationColumns+" FROM registrations WHERE id = $1", id)
}

// GetRegistrationForUpdate retrieves a registration and locks it until the transaction ends
func (r *RegistrationRepository) GetRegistrationForUpdate(ctx context.Context, id int64) (*models.Registration, error) {
	return r.getOne(ctx, "SELECT "+registrationColumns+" FROM registrations WHERE id = $1 FOR UPDATE", id)
}

func (r *RegistrationRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&found); err != nil {
		return false, fmt.Errorf("error checking registration: %w", err)
	}
	return found, nil
}

// HasCourseRegistration reports whether the student holds a registration in any offering of the course
func (r *RegistrationRepository) HasCourseRegistration(ctx context.Context, studentID, courseID int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM registrations WHERE student_id = $1 AND course_id = $2)`, studentID, courseID)
}

// HasOfferingRegistration reports whether the student is registered in the offering
func (r *RegistrationRepository) HasOfferingRegistration(ctx context.Context, studentID, offeringID int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM registrations WHERE student_id = $1 AND offering_id = $2)`, studentID, offeringID)
}

// DeleteRegistration removes a registration
func (r *RegistrationRepository) DeleteRegistration(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRegistrationsByStudent lists a student's registrations, newest first
func (r *RegistrationRepository) ListRegistrationsByStudent(ctx context.Context, studentID int64, page dto.PageRequest) ([]*models.Registration, int64, error) {
	return r.listPage(ctx, squirrel.Eq{"student_id": studentID}, page)
}

// ListRegistrationsByOffering lists the registrations of an offering, newest first
func (r *RegistrationRepository) ListRegistrationsByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) ([]*models.Registration, int64, error) {
	return r.listPage(ctx, squirrel.Eq{"offering_id": offeringID}, page)
}

func (r *RegistrationRepository) listPage(ctx context.Context, where squirrel.Eq, page dto.PageRequest) ([]*models.Registration, int64, error) {
	total, err := queryCount(ctx, r.db, psql.Select("COUNT(*)").From("registrations").Where(where))
	if err != nil {
		return nil, 0, fmt.Errorf("error counting registrations: %w", err)
	}

	offset, limit := helpers.CalculateOffsetLimit(page.Page, page.Size)
	sql, args, err := psql.Select(registrationColumns).
		From("registrations").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Offset(offset).
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("error building SQL: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var registrations []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning row: %w", err)
		}
		registrations = append(registrations, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return registrations, total, nil
}
