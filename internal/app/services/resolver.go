package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/auth"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/dberrors"
)

// CourseFields are the attributes a course is created with when its code is new.
// They are ignored when the course already exists.
type CourseFields struct {
	Name         string
	DepartmentID *int64
	Description  *string
	Credits      int
}

// CourseResolver is get-or-create for courses keyed by code.
type CourseResolver interface {
	Resolve(ctx context.Context, code string, fields CourseFields) (*models.Course, error)
}

type courseResolver struct {
	courses repositories.CourseStore
	audit   AuditSink
	logger  zerolog.Logger
}

// NewCourseResolver creates a CourseResolver. courses must not be bound to a transaction:
// a unique violation aborts a PostgreSQL transaction and the recovery read would fail.
func NewCourseResolver(courses repositories.CourseStore, audit AuditSink, logger zerolog.Logger) CourseResolver {
	return &courseResolver{
		courses: courses,
		audit:   audit,
		logger:  logger.With().Str("component", "course_resolver").Logger(),
	}
}

// NormalizeCourseCode is the canonical form of a course code.
func NormalizeCourseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var errCourseVanished = errors.New("course code reported as duplicate but not found")

// Resolve returns the course with code, creating it from fields when absent. A concurrent
// first insert of the same code is recovered by reading the winner's row, once.
func (r *courseResolver) Resolve(ctx context.Context, code string, fields CourseFields) (*models.Course, error) {
	code = NormalizeCourseCode(code)
	if code == "" {
		return nil, apperrors.NewValidationError("course code is required")
	}
	logFields := map[string]interface{}{"courseCode": code}

	existing, err := r.courses.GetCourseByCode(ctx, code)
	if err != nil {
		return nil, failure(r.logger, "resolve course", err, logFields)
	}
	if existing != nil {
		return existing, nil
	}

	name := strings.TrimSpace(fields.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("course name is required to create a new course")
	}

	course := &models.Course{
		Code:         code,
		Name:         name,
		DepartmentID: fields.DepartmentID,
		Description:  fields.Description,
		Credits:      fields.Credits,
	}
	err = r.courses.CreateCourse(ctx, course)
	if err == nil {
		r.logger.Info().Str("courseCode", code).Int64("courseID", course.ID).Msg("Course created")
		r.audit.Record(ctx, models.AuditEntry{
			ActorID:    actorID(ctx),
			Action:     models.AuditCourseCreated,
			EntityType: "course",
			EntityID:   course.ID,
			Details:    map[string]any{"code": code, "name": name},
		})
		return course, nil
	}

	if !dberrors.IsDuplicateConstraintError(err, repositories.ConstraintCourseCode) {
		return nil, failure(r.logger, "create course", err, logFields)
	}

	// Another writer created the code first.
	r.logger.Debug().Str("courseCode", code).Msg("Concurrent course creation, re-reading")
	winner, err := r.courses.GetCourseByCode(ctx, code)
	if err != nil {
		return nil, failure(r.logger, "re-read course", err, logFields)
	}
	if winner == nil {
		return nil, inconsistent(r.logger, "re-read course", errCourseVanished, logFields)
	}
	return winner, nil
}

// actorID is the principal's id, or 0 for system actions such as seeding.
func actorID(ctx context.Context) int64 {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return 0
	}
	return p.UserID
}
