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

var offeringColumns = []string{
	"o.id", "o.course_id", "o.instructor_id", "o.capacity", "o.enrolled_count",
	"o.status", "o.year", "o.term", "o.created_at", "o.updated_at",
}

// OfferingRepository handles database operations for offerings
type OfferingRepository struct {
	db Querier
}

// NewOfferingRepository creates a new OfferingRepository
func NewOfferingRepository(db Querier) *OfferingRepository {
	return &OfferingRepository{db: db}
}

func scanOffering(row pgx.Row) (*models.Offering, error) {
	var o models.Offering
	err := row.Scan(&o.ID, &o.CourseID, &o.InstructorID, &o.Capacity, &o.EnrolledCount,
		&o.Status, &o.Year, &o.Term, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OfferingRepository) getOne(ctx context.Context, query squirrel.SelectBuilder) (*models.Offering, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	offering, err := scanOffering(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving offering: %w", err)
	}
	return offering, nil
}

func (r *OfferingRepository) list(ctx context.Context, query squirrel.SelectBuilder) ([]*models.Offering, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var offerings []*models.Offering
	for rows.Next() {
		offering, err := scanOffering(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		offerings = append(offerings, offering)
	}
	return offerings, rows.Err()
}

// CreateOffering inserts a new offering
func (r *OfferingRepository) CreateOffering(ctx context.Context, offering *models.Offering) error {
	query := `
		INSERT INTO offerings (course_id, instructor_id, capacity, enrolled_count, status, year, term)
		VALUES ($1, $2, $3, 0, $4, $5, $6)
		RETURNING id, enrolled_count, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		offering.CourseID, offering.InstructorID, offering.Capacity, offering.Status, offering.Year, offering.Term,
	).Scan(&offering.ID, &offering.EnrolledCount, &offering.CreatedAt, &offering.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating offering: %w", err)
	}
	return nil
}

// GetOfferingByID retrieves an offering by ID
func (r *OfferingRepository) GetOfferingByID(ctx context.Context, id int64) (*models.Offering, error) {
	return r.getOne(ctx, psql.Select(offeringColumns...).From("offerings o").Where(squirrel.Eq{"o.id": id}))
}

// GetOfferingForUpdate retrieves an offering and locks its row until the transaction ends
func (r *OfferingRepository) GetOfferingForUpdate(ctx context.Context, id int64) (*models.Offering, error) {
	return r.getOne(ctx, psql.Select(offeringColumns...).From("offerings o").Where(squirrel.Eq{"o.id": id}).Suffix("FOR UPDATE"))
}

// GetOfferingForKeyShare retrieves an offering and takes the lock a foreign key check takes,
// which blocks deletion and FOR UPDATE but not counter updates
func (r *OfferingRepository) GetOfferingForKeyShare(ctx context.Context, id int64) (*models.Offering, error) {
	return r.getOne(ctx, psql.Select(offeringColumns...).From("offerings o").Where(squirrel.Eq{"o.id": id}).Suffix("FOR KEY SHARE"))
}

// ListActiveOfferingsByCourseCode lists the ACTIVE offerings of a course ordered by id
func (r *OfferingRepository) ListActiveOfferingsByCourseCode(ctx context.Context, code string) ([]*models.Offering, error) {
	query := psql.Select(offeringColumns...).
		From("offerings o").
		Join("courses c ON c.id = o.course_id").
		Where(squirrel.Eq{"c.code": code, "o.status": models.OfferingActive}).
		OrderBy("o.id ASC")
	return r.list(ctx, query)
}

// ListOfferings lists offerings matching filter with pagination
func (r *OfferingRepository) ListOfferings(ctx context.Context, filter dto.OfferingFilter) ([]*models.Offering, int64, error) {
	where := squirrel.And{}
	if filter.CourseCode != nil {
		where = append(where, squirrel.Eq{"c.code": *filter.CourseCode})
	}
	if filter.InstructorID != nil {
		where = append(where, squirrel.Eq{"o.instructor_id": *filter.InstructorID})
	}
	if filter.Status != nil {
		where = append(where, squirrel.Eq{"o.status": *filter.Status})
	}

	total, err := queryCount(ctx, r.db, psql.Select("COUNT(*)").
		From("offerings o").
		Join("courses c ON c.id = o.course_id").
		Where(where))
	if err != nil {
		return nil, 0, fmt.Errorf("error counting offerings: %w", err)
	}

	offset, limit := helpers.CalculateOffsetLimit(filter.Page, filter.Size)
	offerings, err := r.list(ctx, psql.Select(offeringColumns...).
		From("offerings o").
		Join("courses c ON c.id = o.course_id").
		Where(where).
		OrderBy("o.id ASC").
		Offset(offset).
		Limit(limit))
	if err != nil {
		return nil, 0, err
	}
	return offerings, total, nil
}

// UpdateOffering writes the mutable fields of an offering. The counter is left alone.
func (r *OfferingRepository) UpdateOffering(ctx context.Context, offering *models.Offering) error {
	sql, args, err := psql.Update("offerings").
		Set("capacity", offering.Capacity).
		Set("status", offering.Status).
		Set("year", offering.Year).
		Set("term", offering.Term).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": offering.ID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("error building SQL: %w", err)
	}

	if err := r.db.QueryRow(ctx, sql, args...).Scan(&offering.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("error updating offering: %w", err)
	}
	return nil
}

// DeleteOffering removes an offering; sessions and bookings cascade
func (r *OfferingRepository) DeleteOffering(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM offerings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting offering: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustOfferingEnrollment applies delta to enrolled_count conditionally
func (r *OfferingRepository) AdjustOfferingEnrollment(ctx context.Context, id int64, delta int) (bool, error) {
	query := `
		UPDATE offerings
		SET enrolled_count = GREATEST(enrolled_count + $2, 0), updated_at = NOW()
		WHERE id = $1 AND ($2 <= 0 OR capacity IS NULL OR enrolled_count + $2 <= capacity)
	`
	tag, err := r.db.Exec(ctx, query, id, delta)
	if err != nil {
		return false, fmt.Errorf("error adjusting offering enrollment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
