package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/auth"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/eligibility"
)

// EligibilityPolicy decides what an unavailable eligibility service means.
type EligibilityPolicy struct {
	Timeout time.Duration
	// FailOpen admits the student when the service errors or times out.
	FailOpen bool
}

// EligibilityGate wraps the prerequisite check with a timeout and the fail-open policy.
type EligibilityGate struct {
	checker eligibility.Checker
	policy  EligibilityPolicy
	logger  zerolog.Logger
}

// NewEligibilityGate creates a gate. A nil checker admits everyone.
func NewEligibilityGate(checker eligibility.Checker, policy EligibilityPolicy, logger zerolog.Logger) *EligibilityGate {
	return &EligibilityGate{
		checker: checker,
		policy:  policy,
		logger:  logger.With().Str("component", "eligibility").Logger(),
	}
}

// Admit returns nil when the student may register for the course.
func (g *EligibilityGate) Admit(ctx context.Context, courseCode string, student auth.Principal) error {
	if g == nil || g.checker == nil {
		return nil
	}

	if g.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.policy.Timeout)
		defer cancel()
	}

	result, err := g.checker.CheckEligibility(ctx, eligibility.Request{
		CourseCode:   courseCode,
		StudentID:    student.UserID,
		StudentEmail: student.Email,
	})
	if err != nil {
		if g.policy.FailOpen {
			g.logger.Warn().Err(err).
				Str("courseCode", courseCode).
				Int64("studentID", student.UserID).
				Msg("Eligibility check unavailable, fail-open")
			return nil
		}
		g.logger.Warn().Err(err).
			Str("courseCode", courseCode).
			Int64("studentID", student.UserID).
			Msg("Eligibility check unavailable, fail-closed")
		return apperrors.NewForbiddenError("eligibility could not be verified")
	}

	if !result.Eligible {
		msg := "prerequisites not met"
		if len(result.Missing) > 0 {
			msg += ": " + strings.Join(result.Missing, ", ")
		}
		return apperrors.Forbidden(apperrors.ErrPrerequisitesUnmet, msg)
	}
	return nil
}
