package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/auth"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/notify"
	"github.com/yigit/unisphere-enrollment/internal/pkg/validation"
)

// EvaluationService records instructor evaluations of students
type EvaluationService interface {
	SubmitEvaluation(ctx context.Context, req *dto.SubmitEvaluationRequest) (*models.Evaluation, error)
	ListEvaluationsByStudent(ctx context.Context, studentID int64, page dto.PageRequest) (*dto.Page[*models.Evaluation], error)
	ListEvaluationsByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) (*dto.Page[*models.Evaluation], error)
}

// evaluationServiceImpl implements EvaluationService
type evaluationServiceImpl struct {
	store    repositories.Store
	notifier notify.Notifier
	audit    AuditSink
	policy   Policy
	logger   zerolog.Logger
}

// NewEvaluationService creates a new EvaluationService
func NewEvaluationService(
	store repositories.Store,
	notifier notify.Notifier,
	audit AuditSink,
	policy Policy,
	logger zerolog.Logger,
) EvaluationService {
	return &evaluationServiceImpl{
		store:    store,
		notifier: notifier,
		audit:    audit,
		policy:   policy,
		logger:   logger.With().Str("component", "evaluation_service").Logger(),
	}
}

// SubmitEvaluation stores one evaluation per student and offering. Retrying with the same
// request token returns the stored evaluation.
func (s *evaluationServiceImpl) SubmitEvaluation(ctx context.Context, req *dto.SubmitEvaluationRequest) (*models.Evaluation, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	token, err := normalizeToken(req.RequestToken)
	if err != nil {
		return nil, err
	}

	evaluation, replayed, err := submitOnce(ctx, s.store, s.logger, submission[models.Evaluation]{
		op:              "submit evaluation",
		token:           token,
		tokenConstraint: repositories.ConstraintEvaluationToken,
		pairConstraint:  repositories.ConstraintEvaluationStudent,
		byToken:         s.store.GetEvaluationByToken,
		byPair: func(ctx context.Context) (*models.Evaluation, error) {
			return s.store.GetEvaluationByStudentOffering(ctx, req.StudentID, req.OfferingID)
		},
		validate: func(ctx context.Context) error {
			return s.validateSubmission(ctx, p, req)
		},
		create: func(ctx context.Context, tx repositories.Tx) (*models.Evaluation, error) {
			e := buildEvaluation(p.UserID, token, req)
			if err := tx.CreateEvaluation(ctx, e); err != nil {
				return nil, err
			}
			return e, nil
		},
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		s.logger.Debug().Int64("evaluationID", evaluation.ID).Msg("Evaluation replayed for request token")
		return evaluation, nil
	}

	s.logger.Info().Int64("evaluationID", evaluation.ID).Int64("studentID", req.StudentID).
		Int64("offeringID", req.OfferingID).Msg("Evaluation submitted")
	publish(ctx, s.notifier, s.logger, notify.EventEvaluationSubmitted, evaluation)
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditEvaluationSubmitted,
		EntityType: "evaluation",
		EntityID:   evaluation.ID,
		Details:    map[string]any{"studentId": req.StudentID, "offeringId": req.OfferingID, "overallScore": evaluation.OverallScore},
	})
	return evaluation, nil
}

// validateSubmission requires offering staff, an enrolled student and the configured number
// of completed sessions.
func (s *evaluationServiceImpl) validateSubmission(ctx context.Context, p auth.Principal, req *dto.SubmitEvaluationRequest) error {
	offering, err := s.store.GetOfferingByID(ctx, req.OfferingID)
	if err != nil {
		return err
	}
	if offering == nil {
		return apperrors.NewResourceNotFoundError("offering not found")
	}
	if err := auth.ValidateOfferingStaff(p, offering); err != nil {
		return err
	}

	enrolled, err := s.store.HasOfferingRegistration(ctx, req.StudentID, req.OfferingID)
	if err != nil {
		return err
	}
	if !enrolled {
		return apperrors.Forbidden(apperrors.ErrNotEnrolled, "student is not enrolled in this offering")
	}

	if required := s.policy.EvaluationMinCompletedSessions; required > 0 {
		completed, err := s.store.CountCompletedSessions(ctx, req.StudentID, req.OfferingID)
		if err != nil {
			return err
		}
		if completed < required {
			return apperrors.NewForbiddenError(fmt.Sprintf("student must complete at least %d session(s) before evaluation", required))
		}
	}
	return nil
}

func buildEvaluation(evaluatorID int64, token *string, req *dto.SubmitEvaluationRequest) *models.Evaluation {
	metrics := make([]models.EvaluationMetric, len(req.Metrics))
	scores := make([]int, len(req.Metrics))
	for i, m := range req.Metrics {
		metrics[i] = models.EvaluationMetric{Name: m.Name, Score: m.Score, Comment: m.Comment}
		scores[i] = m.Score
	}

	return &models.Evaluation{
		StudentID:    req.StudentID,
		OfferingID:   req.OfferingID,
		EvaluatorID:  evaluatorID,
		RequestToken: token,
		OverallScore: meanRounded(scores),
		Comment:      req.Comment,
		Status:       models.SubmissionSubmitted,
		Metrics:      metrics,
	}
}

// ListEvaluationsByStudent lists the evaluations a student received
func (s *evaluationServiceImpl) ListEvaluationsByStudent(ctx context.Context, studentID int64, page dto.PageRequest) (*dto.Page[*models.Evaluation], error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateSelfOrAdmin(p, studentID); err != nil {
		return nil, err
	}
	if err := validation.Struct(page); err != nil {
		return nil, err
	}

	evaluations, total, err := s.store.ListEvaluations(ctx, repositories.SubmissionFilter{StudentID: &studentID, PageRequest: page})
	if err != nil {
		return nil, failure(s.logger, "list evaluations", err, map[string]interface{}{"studentID": studentID})
	}
	return newPage(evaluations, total, page), nil
}

// ListEvaluationsByOffering lists the evaluations of an offering for its staff
func (s *evaluationServiceImpl) ListEvaluationsByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) (*dto.Page[*models.Evaluation], error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(page); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"offeringID": offeringID}

	offering, err := s.store.GetOfferingByID(ctx, offeringID)
	if err != nil {
		return nil, failure(s.logger, "list evaluations", err, fields)
	}
	if offering == nil {
		return nil, apperrors.NewResourceNotFoundError("offering not found")
	}
	if err := auth.ValidateOfferingStaff(p, offering); err != nil {
		return nil, err
	}

	evaluations, total, err := s.store.ListEvaluations(ctx, repositories.SubmissionFilter{OfferingID: &offeringID, PageRequest: page})
	if err != nil {
		return nil, failure(s.logger, "list evaluations", err, fields)
	}
	return newPage(evaluations, total, page), nil
}
