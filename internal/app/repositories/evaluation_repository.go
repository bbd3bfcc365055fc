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

const evaluationColumns = "id, student_id, offering_id, evaluator_id, request_token, overall_score, comment, status, created_at"

// EvaluationRepository handles database operations for evaluations and their metrics
type EvaluationRepository struct {
	db Querier
}

// NewEvaluationRepository creates a new EvaluationRepository
func NewEvaluationRepository(db Querier) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func scanEvaluation(row pgx.Row) (*models.Evaluation, error) {
	var e models.Evaluation
	err := row.Scan(&e.ID, &e.StudentID, &e.OfferingID, &e.EvaluatorID, &e.RequestToken,
		&e.OverallScore, &e.Comment, &e.Status, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvaluation inserts the evaluation and its metrics. Call it inside a transaction so
// both land together.
func (r *EvaluationRepository) CreateEvaluation(ctx context.Context, evaluation *models.Evaluation) error {
	query := `
		INSERT INTO evaluations (student_id, offering_id, evaluator_id, request_token, overall_score, comment, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		evaluation.StudentID, evaluation.OfferingID, evaluation.EvaluatorID, evaluation.RequestToken,
		evaluation.OverallScore, evaluation.Comment, evaluation.Status,
	).Scan(&evaluation.ID, &evaluation.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating evaluation: %w", err)
	}

	for i := range evaluation.Metrics {
		m := &evaluation.Metrics[i]
		m.EvaluationID = evaluation.ID
		err := r.db.QueryRow(ctx,
			`INSERT INTO evaluation_metrics (evaluation_id, name, score, comment) VALUES ($1, $2, $3, $4) RETURNING id`,
			m.EvaluationID, m.Name, m.Score, m.Comment,
		).Scan(&m.ID)
		if err != nil {
			return fmt.Errorf("error creating evaluation metric: %w", err)
		}
	}
	return nil
}

func (r *EvaluationRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*models.Evaluation, error) {
	sql, args, err := psql.Select(evaluationColumns).From("evaluations").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building SQL: %w", err)
	}

	evaluation, err := scanEvaluation(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving evaluation: %w", err)
	}

	if err := r.loadMetrics(ctx, []*models.Evaluation{evaluation}); err != nil {
		return nil, err
	}
	return evaluation, nil
}

// GetEvaluationByToken retrieves an evaluation by its request token
func (r *EvaluationRepository) GetEvaluationByToken(ctx context.Context, token string) (*models.Evaluation, error) {
	return r.getOne(ctx, squirrel.Eq{"request_token": token})
}

// GetEvaluationByStudentOffering retrieves the evaluation of a student in an offering
func (r *EvaluationRepository) GetEvaluationByStudentOffering(ctx context.Context, studentID, offeringID int64) (*models.Evaluation, error) {
	return r.getOne(ctx, squirrel.Eq{"student_id": studentID, "offering_id": offeringID})
}

// ListEvaluations lists evaluations matching filter, newest first
func (r *EvaluationRepository) ListEvaluations(ctx context.Context, filter SubmissionFilter) ([]*models.Evaluation, int64, error) {
	where := submissionWhere(filter)

	total, err := queryCount(ctx, r.db, psql.Select("COUNT(*)").From("evaluations").Where(where))
	if err != nil {
		return nil, 0, fmt.Errorf("error counting evaluations: %w", err)
	}

	offset, limit := helpers.CalculateOffsetLimit(filter.Page, filter.Size)
	sql, args, err := psql.Select(evaluationColumns).
		From("evaluations").
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

	var evaluations []*models.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning row: %w", err)
		}
		evaluations = append(evaluations, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if err := r.loadMetrics(ctx, evaluations); err != nil {
		return nil, 0, err
	}
	return evaluations, total, nil
}

func (r *EvaluationRepository) loadMetrics(ctx context.Context, evaluations []*models.Evaluation) error {
	if len(evaluations) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Evaluation, len(evaluations))
	ids := make([]int64, 0, len(evaluations))
	for _, e := range evaluations {
		e.Metrics = []models.EvaluationMetric{}
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, evaluation_id, name, score, comment FROM evaluation_metrics WHERE evaluation_id = ANY($1) ORDER BY id`,
		ids)
	if err != nil {
		return fmt.Errorf("error loading evaluation metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.EvaluationMetric
		if err := rows.Scan(&m.ID, &m.EvaluationID, &m.Name, &m.Score, &m.Comment); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		if e, ok := byID[m.EvaluationID]; ok {
			e.Metrics = append(e.Metrics, m)
		}
	}
	return rows.Err()
}

func submissionWhere(filter SubmissionFilter) squirrel.Eq {
	where := squirrel.Eq{}
	if filter.StudentID != nil {
		where["student_id"] = *filter.StudentID
	}
	if filter.OfferingID != nil {
		where["offering_id"] = *filter.OfferingID
	}
	return where
}
