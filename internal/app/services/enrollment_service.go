package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/auth"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/dberrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/validation"
)

// EnrollmentService registers students in offerings and releases them
type EnrollmentService interface {
	Enroll(ctx context.Context, req *dto.EnrollRequest) (*models.Registration, error)
	Exit(ctx context.Context, registrationID int64) error
	ListRegistrationsByStudent(ctx context.Context, studentID int64, page dto.PageRequest) (*dto.Page[*models.Registration], error)
	ListRegistrationsByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) (*dto.Page[*models.Registration], error)
}

// enrollmentServiceImpl implements EnrollmentService
type enrollmentServiceImpl struct {
	store  repositories.Store
	ledger CapacityLedger
	gate   *EligibilityGate
	audit  AuditSink
	logger zerolog.Logger
}

// NewEnrollmentService creates a new EnrollmentService
func NewEnrollmentService(
	store repositories.Store,
	ledger CapacityLedger,
	gate *EligibilityGate,
	audit AuditSink,
	logger zerolog.Logger,
) EnrollmentService {
	return &enrollmentServiceImpl{
		store:  store,
		ledger: ledger,
		gate:   gate,
		audit:  audit,
		logger: logger.With().Str("component", "enrollment_service").Logger(),
	}
}

// Enroll registers the calling student in the offering selected by id or course code.
//
// The admission rules run twice: once without locks so that a doomed request never reaches
// the eligibility service, and again inside the booking transaction with the offering row
// locked, where the registration insert and the counter increment commit together.
func (s *enrollmentServiceImpl) Enroll(ctx context.Context, req *dto.EnrollRequest) (*models.Registration, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidateStudent(p); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"studentID": p.UserID}

	// Resolve the target offering
	offering, err := s.selectOffering(ctx, req)
	if err != nil {
		return nil, failure(s.logger, "select offering", err, fields)
	}
	fields["offeringID"] = offering.ID

	course, err := s.store.GetCourseByID(ctx, offering.CourseID)
	if err != nil {
		return nil, failure(s.logger, "enroll", err, fields)
	}
	if course == nil {
		return nil, inconsistent(s.logger, "enroll", errors.New("offering references a missing course"), fields)
	}

	if err := s.checkAdmission(ctx, s.store, p.UserID, offering); err != nil {
		return nil, failure(s.logger, "enroll", err, fields)
	}

	// No row lock is held across this call.
	if err := s.gate.Admit(ctx, course.Code, p); err != nil {
		return nil, err
	}

	registration := &models.Registration{
		StudentID:  p.UserID,
		OfferingID: offering.ID,
		CourseID:   offering.CourseID,
	}
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		locked, err := tx.GetOfferingForUpdate(ctx, offering.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return apperrors.NewResourceNotFoundError("offering not found")
		}
		if err := s.checkAdmission(ctx, tx, p.UserID, locked); err != nil {
			return err
		}

		if err := tx.CreateRegistration(ctx, registration); err != nil {
			if dberrors.IsDuplicateConstraintError(err, repositories.ConstraintRegistrationCourse) ||
				dberrors.IsDuplicateConstraintError(err, repositories.ConstraintRegistrationOffering) {
				return apperrors.Conflict(apperrors.ErrAlreadyRegistered, "already registered for this course")
			}
			return err
		}
		return s.ledger.Adjust(ctx, tx, OfferingRef(offering.ID), 1)
	})
	if err != nil {
		return nil, failure(s.logger, "enroll", err, fields)
	}

	s.logger.Info().Int64("studentID", p.UserID).Int64("offeringID", offering.ID).Msg("Student enrolled")
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditEnrolled,
		EntityType: "registration",
		EntityID:   registration.ID,
		Details:    map[string]any{"offeringId": offering.ID, "courseCode": course.Code},
	})
	return registration, nil
}

// selectOffering resolves the request to one offering. By course code, the ACTIVE offering with
// the most remaining capacity wins, unbounded counting as infinite; ties go to the lowest id.
func (s *enrollmentServiceImpl) selectOffering(ctx context.Context, req *dto.EnrollRequest) (*models.Offering, error) {
	if req.OfferingID != nil {
		offering, err := s.store.GetOfferingByID(ctx, *req.OfferingID)
		if err != nil {
			return nil, err
		}
		if offering == nil {
			return nil, apperrors.NewResourceNotFoundError("offering not found")
		}
		return offering, nil
	}

	candidates, err := s.store.ListActiveOfferingsByCourseCode(ctx, NormalizeCourseCode(req.CourseCode))
	if err != nil {
		return nil, err
	}
	best := pickOffering(candidates)
	if best == nil {
		return nil, apperrors.NewResourceNotFoundError("no open offering found for this course")
	}
	return best, nil
}

func pickOffering(candidates []*models.Offering) *models.Offering {
	var best *models.Offering
	for _, o := range candidates {
		if best == nil || hasMoreRoom(o, best) {
			best = o
		}
	}
	return best
}

// hasMoreRoom reports whether a ranks strictly before b.
func hasMoreRoom(a, b *models.Offering) bool {
	ra, boundedA := a.RemainingCapacity()
	rb, boundedB := b.RemainingCapacity()
	switch {
	case boundedA != boundedB:
		return !boundedA
	case boundedA && ra != rb:
		return ra > rb
	default:
		return a.ID < b.ID
	}
}

// checkAdmission applies the offering rules in order: open, not owned by the student, not
// already booked for the course, not already booked for the offering, room left.
func (s *enrollmentServiceImpl) checkAdmission(ctx context.Context, q repositories.Tx, studentID int64, offering *models.Offering) error {
	if offering.Status != models.OfferingActive {
		return apperrors.Conflict(apperrors.ErrNotOpen, "offering is not open for enrollment")
	}
	if offering.InstructorID == studentID {
		return apperrors.Forbidden(apperrors.ErrSelfEnrollment, "you cannot enroll in your own offering")
	}

	registered, err := q.HasCourseRegistration(ctx, studentID, offering.CourseID)
	if err != nil {
		return err
	}
	if registered {
		return apperrors.Conflict(apperrors.ErrAlreadyRegistered, "already registered for this course")
	}

	registered, err = q.HasOfferingRegistration(ctx, studentID, offering.ID)
	if err != nil {
		return err
	}
	if registered {
		return apperrors.Conflict(apperrors.ErrAlreadyRegistered, "already registered for this offering")
	}

	// offering is either an unlocked read or the row locked by the caller; room is judged on it.
	if !hasRoom(offering.Capacity, offering.EnrolledCount) {
		return apperrors.Conflict(apperrors.ErrClassFull, "Class is full")
	}
	return nil
}

// Exit deletes the caller's registration and every session booking it holds in that offering.
// Lock order is student schedule, offering row, registration row, then session rows.
func (s *enrollmentServiceImpl) Exit(ctx context.Context, registrationID int64) error {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{"registrationID": registrationID, "studentID": p.UserID}

	registration, err := s.store.GetRegistrationByID(ctx, registrationID)
	if err != nil {
		return failure(s.logger, "exit", err, fields)
	}
	if registration == nil {
		return apperrors.NewResourceNotFoundError("registration not found")
	}
	if registration.StudentID != p.UserID {
		return apperrors.NewForbiddenError("registration belongs to another student")
	}

	var released int
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := tx.LockStudentSchedule(ctx, p.UserID); err != nil {
			return err
		}
		if _, err := tx.GetOfferingForUpdate(ctx, registration.OfferingID); err != nil {
			return err
		}
		locked, err := tx.GetRegistrationForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}
		if locked == nil {
			return apperrors.NewResourceNotFoundError("registration not found")
		}

		enrollments, err := tx.ListStudentEnrollmentsInOffering(ctx, p.UserID, registration.OfferingID)
		if err != nil {
			return err
		}
		for _, e := range enrollments {
			if err := s.ledger.Adjust(ctx, tx, SessionRef(e.SessionID), -1); err != nil {
				return err
			}
			if err := tx.DeleteSessionEnrollment(ctx, e.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return err
			}
			released++
		}

		if err := tx.DeleteRegistration(ctx, registrationID); err != nil {
			return notFound(err, "registration not found")
		}
		return s.ledger.Adjust(ctx, tx, OfferingRef(registration.OfferingID), -1)
	})
	if err != nil {
		return failure(s.logger, "exit", err, fields)
	}

	s.logger.Info().Int64("studentID", p.UserID).Int64("offeringID", registration.OfferingID).
		Int("sessionsReleased", released).Msg("Student exited offering")
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditExited,
		EntityType: "registration",
		EntityID:   registrationID,
		Details:    map[string]any{"offeringId": registration.OfferingID, "sessionsReleased": released},
	})
	return nil
}

// ListRegistrationsByStudent lists a student's registrations
func (s *enrollmentServiceImpl) ListRegistrationsByStudent(ctx context.Context, studentID int64, page dto.PageRequest) (*dto.Page[*models.Registration], error) {
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

	registrations, total, err := s.store.ListRegistrationsByStudent(ctx, studentID, page)
	if err != nil {
		return nil, failure(s.logger, "list registrations", err, map[string]interface{}{"studentID": studentID})
	}
	return newPage(registrations, total, page), nil
}

// ListRegistrationsByOffering lists the registrations of an offering for its staff
func (s *enrollmentServiceImpl) ListRegistrationsByOffering(ctx context.Context, offeringID int64, page dto.PageRequest) (*dto.Page[*models.Registration], error) {
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
		return nil, failure(s.logger, "list registrations", err, fields)
	}
	if offering == nil {
		return nil, apperrors.NewResourceNotFoundError("offering not found")
	}
	if err := auth.ValidateOfferingStaff(p, offering); err != nil {
		return nil, err
	}

	registrations, total, err := s.store.ListRegistrationsByOffering(ctx, offeringID, page)
	if err != nil {
		return nil, failure(s.logger, "list registrations", err, fields)
	}
	return newPage(registrations, total, page), nil
}
