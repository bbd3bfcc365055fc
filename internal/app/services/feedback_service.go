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

// FeedbackService records student feedback on offerings
type FeedbackService interface {
	SubmitFeedback(ctx context.Context, req *dto.SubmitFeedbackRequest) (*models.Feedback, error)
	ListFeedbackByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) (*dto.Page[*models.Feedback], error)
}

// feedbackServiceImpl implements FeedbackService
type feedbackServiceImpl struct {
	store    repositories.Store
	notifier notify.Notifier
	audit    AuditSink
	policy   Policy
	logger   zerolog.Logger
}

// NewFeedbackService creates a new FeedbackService
func NewFeedbackService(
	store repositories.Store,
	notifier notify.Notifier,
	audit AuditSink,
	policy Policy,
	logger zerolog.Logger,
) FeedbackService {
	return &feedbackServiceImpl{
		store:    store,
		notifier: notifier,
		audit:    audit,
		policy:   policy,
		logger:   logger.With().Str("component", "feedback_service").Logger(),
	}
}

// SubmitFeedback stores the calling student's feedback on an offering, once
func (s *feedbackServiceImpl) SubmitFeedback(ctx context.Context, req *dto.SubmitFeedbackRequest) (*models.Feedback, error) {
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

	feedback, replayed, err := submitOnce(ctx, s.store, s.logger, submission[models.Feedback]{
		op:              "submit feedback",
		token:           token,
		tokenConstraint: repositories.ConstraintFeedbackToken,
		pairConstraint:  repositories.ConstraintFeedbackStudentOffering,
		byToken:         s.store.GetFeedbackByToken,
		byPair: func(ctx context.Context) (*models.Feedback, error) {
			return s.store.GetFeedbackByStudentOffering(ctx, p.UserID, req.OfferingID)
		},
		validate: func(ctx context.Context) error {
			return s.validateSubmission(ctx, p, req)
		},
		create: func(ctx context.Context, tx repositories.Tx) (*models.Feedback, error) {
			f := buildFeedback(p.UserID, token, req)
			if err := tx.CreateFeedback(ctx, f); err != nil {
				return nil, err
			}
			return f, nil
		},
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return feedback, nil
	}

	s.logger.Info().Int64("feedbackID", feedback.ID).Int64("offeringID", req.OfferingID).Msg("Feedback submitted")
	publish(ctx, s.notifier, s.logger, notify.EventFeedbackSubmitted, redactFeedback(feedback))
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditFeedbackSubmitted,
		EntityType: "feedback",
		EntityID:   feedback.ID,
		Details:    map[string]any{"offeringId": req.OfferingID, "overallRating": feedback.OverallRating},
	})
	return feedback, nil
}

func (s *feedbackServiceImpl) validateSubmission(ctx context.Context, p auth.Principal, req *dto.SubmitFeedbackRequest) error {
	if err := auth.ValidateStudent(p); err != nil {
		return err
	}

	offering, err := s.store.GetOfferingByID(ctx, req.OfferingID)
	if err != nil {
		return err
	}
	if offering == nil {
		return apperrors.NewResourceNotFoundError("offering not found")
	}

	enrolled, err := s.store.HasOfferingRegistration(ctx, p.UserID, req.OfferingID)
	if err != nil {
		return err
	}
	if !enrolled {
		return apperrors.Forbidden(apperrors.ErrNotEnrolled, "you are not enrolled in this offering")
	}

	if required := s.policy.FeedbackMinCompletedSessions; required > 0 {
		completed, err := s.store.CountCompletedSessions(ctx, p.UserID, req.OfferingID)
		if err != nil {
			return err
		}
		if completed < required {
			return apperrors.NewForbiddenError(fmt.Sprintf("complete at least %d session(s) before giving feedback", required))
		}
	}
	return nil
}

func buildFeedback(studentID int64, token *string, req *dto.SubmitFeedbackRequest) *models.Feedback {
	ratings := make([]models.FeedbackRating, len(req.Ratings))
	values := make([]int, len(req.Ratings))
	for i, r := range req.Ratings {
		ratings[i] = models.FeedbackRating{Aspect: r.Aspect, Rating: r.Rating}
		values[i] = r.Rating
	}

	return &models.Feedback{
		StudentID:     studentID,
		OfferingID:    req.OfferingID,
		RequestToken:  token,
		OverallRating: meanRounded(values),
		Comment:       req.Comment,
		Anonymous:     req.Anonymous,
		Status:        models.SubmissionSubmitted,
		Ratings:       ratings,
	}
}

// redactFeedback hides the author of anonymous feedback from staff.
func redactFeedback(f *models.Feedback) *models.Feedback {
	if !f.Anonymous {
		return f
	}
	copied := *f
	copied.StudentID = 0
	return &copied
}

// ListFeedbackByOffering lists the feedback of an offering for its staff
func (s *feedbackServiceImpl) ListFeedbackByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) (*dto.Page[*models.Feedback], error) {
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
		return nil, failure(s.logger, "list feedback", err, fields)
	}
	if offering == nil {
		return nil, apperrors.NewResourceNotFoundError("offering not found")
	}
	if err := auth.ValidateOfferingStaff(p, offering); err != nil {
		return nil, err
	}

	list, total, err := s.store.ListFeedback(ctx, repositories.SubmissionFilter{OfferingID: &offeringID, PageRequest: page})
	if err != nil {
		return nil, failure(s.logger, "list feedback", err, fields)
	}
	for i, f := range list {
		list[i] = redactFeedback(f)
	}
	return newPage(list, total, page), nil
}
