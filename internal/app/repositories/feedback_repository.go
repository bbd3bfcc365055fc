package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/pkg/helpers"
)

const feedbackColumns = "id, student_id, offering_id, request_token, overall_rating, comment, anonymous, status, created_at"

// FeedbackRepository handles database operations for feedback and its ratings
type FeedbackRepository struct {
	db Querier
}

// NewFeedbackRepository creates a new FeedbackRepository
func NewFeedbackRepository(db Querier) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func scanFeedback(row pgx.Row) (*models.Feedback, error) {
	var f models.Feedback
	err := row.Scan(&f.ID, &f.StudentID, &f.OfferingID, &f.RequestToken, &f.OverallRating,
		&f.Comment, &f.Anonymous, &f.Status, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFeedback inserts the feedback and its ratings
func (r *FeedbackRepository) CreateFeedback(ctx context.Context, feedback *models.Feedback) error {
	query := `
		INSERT INTO feedback (student_id, offering_id, request_token, overall_rating, comment, anonymous, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		feedback.StudentID, feedback.OfferingID, feedback.RequestToken, feedback.OverallRating,
		feedback.Comment, feedback.Anonymous, feedback.Status,
	).Scan(&feedback.ID, &feedback.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating feedback: %w", err)
	}

	for i := range feedback.Ratings {
		rt := &feedback.Ratings[i]
		rt.FeedbackID = feedback.ID
		err := r.db.QueryRow(ctx,
			`INSERT INTO feedback_ratings (feedback_id, aspect, rating) VALUES ($1, $2, $3) RETURNING id`,
			rt.FeedbackID, rt.Aspect, rt.Rating,
		).Scan(&rt.ID)
		if err != nil {
			return fmt.Errorf("error creating feedback rating: %w", err)
		}
	}
	return nil
}

func (r *FeedbackRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*models.Feedback, error) {
	sql, args, err := psql.Select(feedbackColumns).From("feedback").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	feedback, err := scanFeedback(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving feedback: %w", err)
	}

	if err := r.loadRatings(ctx, []*models.Feedback{feedback}); err != nil {
		return nil, err
	}
	return feedback, nil
}

// GetFeedbackByToken retrieves feedback by its request token
func (r *FeedbackRepository) GetFeedbackByToken(ctx context.Context, token string) (*models.Feedback, error) {
	return r.getOne(ctx, squirrel.Eq{"request_token": token})
}

// GetFeedbackByStudentOffering retrieves the feedback of a student on an offering
func (r *FeedbackRepository) GetFeedbackByStudentOffering(ctx context.Context, studentID, offeringID int64) (*models.Feedback, error) {
	return r.getOne(ctx, squirrel.Eq{"student_id": studentID, "offering_id": offeringID})
}

// ListFeedback lists feedback matching filter, newest first
func (r *FeedbackRepository) ListFeedback(ctx context.Context, filter SubmissionFilter) ([]*models.Feedback, int64, error) {
	where := submissionWhere(filter)

	total, err := queryCount(ctx, r.db, psql.Select("COUNT(*)").From("feedback").Where(where))
	if err != nil {
		return nil, 0, fmt.Errorf("error counting feedback: %w", err)
	}

	offset, limit := helpers.CalculateOffsetLimit(filter.Page, filter.Size)
	sql, args, err := psql.Select(feedbackColumns).
		From("feedback").
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

	var list []*models.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning row: %w", err)
		}
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if err := r.loadRatings(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *FeedbackRepository) loadRatings(ctx context.Context, list []*models.Feedback) error {
	if len(list) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Feedback, len(list))
	ids := make([]int64, 0, len(list))
	for _, f := range list {
		f.Ratings = []models.FeedbackRating{}
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, feedback_id, aspect, rating FROM feedback_ratings WHERE feedback_id = ANY($1) ORDER BY id`,
		ids)
	if err != nil {
		return fmt.Errorf("error loading feedback ratings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rt models.FeedbackRating
		if err := rows.Scan(&rt.ID, &rt.FeedbackID, &rt.Aspect, &rt.Rating); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		if f, ok := byID[rt.FeedbackID]; ok {
			f.Ratings = append(f.Ratings, rt)
		}
	}
	return rows.Err()
}
