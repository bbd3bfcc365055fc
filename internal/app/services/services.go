package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/auth"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/eligibility"
	"github.com/yigit/unisphere-enrollment/internal/pkg/helpers"
	"github.com/yigit/unisphere-enrollment/internal/pkg/notify"
)

// Policy holds the tunable enrollment rules.
type Policy struct {
	SessionDefaultCapacity         int
	EvaluationMinCompletedSessions int
	FeedbackMinCompletedSessions   int
}

// Deps are the collaborators the services are built from.
type Deps struct {
	Store             repositories.Store
	Eligibility       eligibility.Checker
	EligibilityPolicy EligibilityPolicy
	Notifier          notify.Notifier
	AuditTimeout      time.Duration
	Policy            Policy
	Logger            zerolog.Logger
}

// Services is the set of operations offered to the calling layer.
type Services struct {
	Courses     CourseResolver
	Offerings   OfferingService
	Sessions    SessionService
	Enrollments EnrollmentService
	Evaluations EvaluationService
	Feedback    FeedbackService
}

// New wires every service around one store.
func New(deps Deps) *Services {
	if deps.Notifier == nil {
		deps.Notifier = notify.NopNotifier{}
	}
	if deps.Policy.SessionDefaultCapacity <= 0 {
		deps.Policy.SessionDefaultCapacity = 30
	}

	audit := NewAuditSink(deps.Store, deps.AuditTimeout, deps.Logger)
	ledger := NewCapacityLedger(deps.Logger)
	resolver := NewCourseResolver(deps.Store, audit, deps.Logger)
	gate := NewEligibilityGate(deps.Eligibility, deps.EligibilityPolicy, deps.Logger)

	return &Services{
		Courses:     resolver,
		Offerings:   NewOfferingService(deps.Store, resolver, audit, deps.Logger),
		Sessions:    NewSessionService(deps.Store, ledger, audit, deps.Policy, deps.Logger),
		Enrollments: NewEnrollmentService(deps.Store, ledger, gate, audit, deps.Logger),
		Evaluations: NewEvaluationService(deps.Store, deps.Notifier, audit, deps.Policy, deps.Logger),
		Feedback:    NewFeedbackService(deps.Store, deps.Notifier, audit, deps.Policy, deps.Logger),
	}
}

// notFound maps a repository miss onto a NotFound error with msg.
func notFound(err error, msg string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperrors.NewResourceNotFoundError(msg)
	}
	return err
}

// validateSelfOrAdmin allows a student to read their own data, and administrators everyone's.
func validateSelfOrAdmin(p auth.Principal, studentID int64) error {
	if p.IsAdmin() || p.UserID == studentID {
		return nil
	}
	return apperrors.NewForbiddenError("you can only view your own records")
}

func newPage[T any](items []T, total int64, page dto.PageRequest) *dto.Page[T] {
	if items == nil {
		items = []T{}
	}
	return &dto.Page[T]{
		Items:      items,
		Pagination: helpers.NewPaginationInfo(total, page.Page, page.Size),
	}
}

// publish sends an event to the notification service; failures are logged and dropped.
func publish(ctx context.Context, n notify.Notifier, logger zerolog.Logger, kind notify.EventKind, record any) {
	if err := n.Notify(context.WithoutCancel(ctx), kind, record); err != nil {
		logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to publish notification")
	}
}
