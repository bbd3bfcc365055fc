package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/auth"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/dberrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/validation"
)

// rescheduleAttempts bounds the retries when students join a session while it is being moved.
const rescheduleAttempts = 3

var errEnrollmentChanged = errors.New("session enrollment changed during reschedule")

// SessionService manages sessions and the students booked into them
type SessionService interface {
	CreateSession(ctx context.Context, req *dto.CreateSessionRequest) (*models.Session, error)
	RescheduleSession(ctx context.Context, sessionID int64, req *dto.RescheduleSessionRequest) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID int64) error
	RegisterSession(ctx context.Context, sessionID int64) (*models.SessionEnrollment, error)
	UnregisterSession(ctx context.Context, enrollmentID int64) error
	ListScheduleByStudent(ctx context.Context, studentID int64) ([]models.ScheduledSession, error)
	ListSessionsByOffering(ctx context.Context, offeringID int64) ([]*models.Session, error)
}

// sessionServiceImpl implements SessionService
type sessionServiceImpl struct {
	store    repositories.Store
	ledger   CapacityLedger
	detector ConflictDetector
	audit    AuditSink
	policy   Policy
	logger   zerolog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(
	store repositories.Store,
	ledger CapacityLedger,
	audit AuditSink,
	policy Policy,
	logger zerolog.Logger,
) SessionService {
	return &sessionServiceImpl{
		store:  store,
		ledger: ledger,
		audit:  audit,
		policy: policy,
		logger: logger.With().Str("component", "session_service").Logger(),
	}
}

func validateInterval(start time.Time, end *time.Time) error {
	if end != nil && !end.After(start) {
		return apperrors.NewValidationError("endTime must be after startTime").
			WithDetails(map[string]interface{}{"endTime": "endTime must be after startTime"})
	}
	return nil
}

func sessionIsOpen(session *models.Session, offering *models.Offering) bool {
	if offering.Status != models.OfferingActive {
		return false
	}
	return session.Status == models.SessionScheduled || session.Status == models.SessionActive
}

// ownedOffering loads an offering and checks the caller owns it
func (s *sessionServiceImpl) ownedOffering(ctx context.Context, p auth.Principal, offeringID int64) (*models.Offering, error) {
	offering, err := s.store.GetOfferingByID(ctx, offeringID)
	if err != nil {
		return nil, err
	}
	if offering == nil {
		return nil, apperrors.NewResourceNotFoundError("offering not found")
	}
	if err := auth.ValidateOfferingOwnership(p, offering); err != nil {
		return nil, err
	}
	return offering, nil
}

// ownedSession loads a session and checks the caller owns its offering
func (s *sessionServiceImpl) ownedSession(ctx context.Context, p auth.Principal, sessionID int64) (*models.Session, error) {
	session, err := s.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NewResourceNotFoundError("session not found")
	}
	if _, err := s.ownedOffering(ctx, p, session.OfferingID); err != nil {
		return nil, err
	}
	return session, nil
}

// CreateSession schedules a session of an offering owned by the caller
func (s *sessionServiceImpl) CreateSession(ctx context.Context, req *dto.CreateSessionRequest) (*models.Session, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := validateInterval(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"offeringID": req.OfferingID}

	offering, err := s.ownedOffering(ctx, p, req.OfferingID)
	if err != nil {
		return nil, failure(s.logger, "create session", err, fields)
	}
	if offering.Status == models.OfferingCancelled || offering.Status == models.OfferingCompleted {
		return nil, apperrors.Conflict(apperrors.ErrNotOpen, "cannot add sessions to a closed offering")
	}

	capacity := s.policy.SessionDefaultCapacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}

	session := &models.Session{
		OfferingID: offering.ID,
		Title:      req.Title,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Capacity:   capacity,
		Status:     models.SessionScheduled,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, failure(s.logger, "create session", err, fields)
	}

	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditSessionCreated,
		EntityType: "session",
		EntityID:   session.ID,
		Details:    map[string]any{"offeringId": offering.ID, "capacity": capacity},
	})
	return session, nil
}

// RescheduleSession moves a session. It is rejected when the new interval overlaps another
// session of any student booked into it.
func (s *sessionServiceImpl) RescheduleSession(ctx context.Context, sessionID int64, req *dto.RescheduleSessionRequest) (*models.Session, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := validateInterval(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"sessionID": sessionID}

	if _, err := s.ownedSession(ctx, p, sessionID); err != nil {
		return nil, failure(s.logger, "reschedule session", err, fields)
	}

	var updated *models.Session
	for attempt := 0; attempt < rescheduleAttempts; attempt++ {
		err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
			session, err := s.reschedule(ctx, tx, sessionID, req)
			updated = session
			return err
		})
		if !errors.Is(err, errEnrollmentChanged) {
			break
		}
		s.logger.Debug().Int64("sessionID", sessionID).Int("attempt", attempt+1).Msg("Session enrollment changed, retrying reschedule")
	}
	if errors.Is(err, errEnrollmentChanged) {
		return nil, apperrors.NewConflictError("session enrollment changed concurrently, try again")
	}
	if err != nil {
		return nil, failure(s.logger, "reschedule session", err, fields)
	}

	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditSessionRescheduled,
		EntityType: "session",
		EntityID:   sessionID,
		Details:    map[string]any{"startTime": req.StartTime, "endTime": req.EndTime},
	})
	return updated, nil
}

// reschedule locks the schedules of the booked students in ascending id order before the
// session row, the same order RegisterSession uses, then checks each schedule.
func (s *sessionServiceImpl) reschedule(ctx context.Context, tx repositories.Tx, sessionID int64, req *dto.RescheduleSessionRequest) (*models.Session, error) {
	students, err := tx.ListSessionStudentIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(students, func(i, j int) bool { return students[i] < students[j] })
	locked := make(map[int64]bool, len(students))
	for _, id := range students {
		if err := tx.LockStudentSchedule(ctx, id); err != nil {
			return nil, err
		}
		locked[id] = true
	}

	session, err := tx.GetSessionForUpdate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NewResourceNotFoundError("session not found")
	}

	current, err := tx.ListSessionStudentIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, id := range current {
		if !locked[id] {
			return nil, errEnrollmentChanged
		}
	}

	candidate := Interval{ID: sessionID, Start: req.StartTime, End: req.EndTime}
	for _, studentID := range current {
		schedule, err := tx.ListStudentSchedule(ctx, studentID)
		if err != nil {
			return nil, err
		}
		if other, found := s.detector.FindOverlap(candidate, scheduleIntervals(schedule)); found {
			return nil, apperrors.Conflict(apperrors.ErrTimeConflict,
				fmt.Sprintf("time conflicts with session %d booked by student %d", other.ID, studentID))
		}
	}

	if err := tx.UpdateSessionTimes(ctx, sessionID, req.StartTime, req.EndTime); err != nil {
		return nil, notFound(err, "session not found")
	}
	session.StartTime = req.StartTime
	session.EndTime = req.EndTime
	return session, nil
}

// DeleteSession removes a session and its bookings
func (s *sessionServiceImpl) DeleteSession(ctx context.Context, sessionID int64) error {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{"sessionID": sessionID}

	session, err := s.ownedSession(ctx, p, sessionID)
	if err != nil {
		return failure(s.logger, "delete session", err, fields)
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return failure(s.logger, "delete session", notFound(err, "session not found"), fields)
	}

	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditSessionDeleted,
		EntityType: "session",
		EntityID:   sessionID,
		Details:    map[string]any{"offeringId": session.OfferingID, "participants": session.CurrentParticipants},
	})
	return nil
}

// RegisterSession books the calling student into a session. The student's schedule lock is
// held from the overlap read through the insert. Lock order is student schedule, offering row,
// then session row.
func (s *sessionServiceImpl) RegisterSession(ctx context.Context, sessionID int64) (*models.SessionEnrollment, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidateStudent(p); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"sessionID": sessionID, "studentID": p.UserID}

	var enrollment *models.SessionEnrollment
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := tx.LockStudentSchedule(ctx, p.UserID); err != nil {
			return err
		}

		// The enrollment insert key-shares the offering row; take it before the session row.
		target, err := tx.GetSessionByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperrors.NewResourceNotFoundError("session not found")
		}
		offering, err := tx.GetOfferingForKeyShare(ctx, target.OfferingID)
		if err != nil {
			return err
		}
		if offering == nil {
			return apperrors.NewResourceNotFoundError("offering not found")
		}
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return apperrors.NewResourceNotFoundError("session not found")
		}

		if err := s.checkAdmission(ctx, tx, p.UserID, session, offering); err != nil {
			return err
		}

		enrollment = &models.SessionEnrollment{
			StudentID:  p.UserID,
			SessionID:  session.ID,
			OfferingID: session.OfferingID,
		}
		if err := tx.CreateSessionEnrollment(ctx, enrollment); err != nil {
			if dberrors.IsDuplicateConstraintError(err, repositories.ConstraintSessionEnrollment) {
				return apperrors.Conflict(apperrors.ErrAlreadyRegistered, "already registered for this session")
			}
			return err
		}
		return s.ledger.Adjust(ctx, tx, SessionRef(session.ID), 1)
	})
	if err != nil {
		return nil, failure(s.logger, "register session", err, fields)
	}

	s.logger.Info().Int64("studentID", p.UserID).Int64("sessionID", sessionID).Msg("Student registered for session")
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditSessionRegistered,
		EntityType: "session_enrollment",
		EntityID:   enrollment.ID,
		Details:    map[string]any{"sessionId": sessionID, "offeringId": enrollment.OfferingID},
	})
	return enrollment, nil
}

// checkAdmission applies the session rules in order: open, not owned by the student, booked
// into the parent offering, not already booked into the session, room left, no overlap.
func (s *sessionServiceImpl) checkAdmission(ctx context.Context, tx repositories.Tx, studentID int64, session *models.Session, offering *models.Offering) error {
	if !sessionIsOpen(session, offering) {
		return apperrors.Conflict(apperrors.ErrNotOpen, "session is not open for registration")
	}
	if offering.InstructorID == studentID {
		return apperrors.Forbidden(apperrors.ErrSelfEnrollment, "you cannot register for your own session")
	}

	registered, err := tx.HasOfferingRegistration(ctx, studentID, offering.ID)
	if err != nil {
		return err
	}
	if !registered {
		return apperrors.Forbidden(apperrors.ErrNotEnrolled, "you must be enrolled in the offering first")
	}

	booked, err := tx.HasSessionEnrollment(ctx, studentID, session.ID)
	if err != nil {
		return err
	}
	if booked {
		return apperrors.Conflict(apperrors.ErrAlreadyRegistered, "already registered for this session")
	}

	room, err := s.ledger.HasRoom(ctx, tx, SessionRef(session.ID))
	if err != nil {
		return err
	}
	if !room {
		return apperrors.Conflict(apperrors.ErrSessionFull, "Session is full")
	}

	schedule, err := tx.ListStudentSchedule(ctx, studentID)
	if err != nil {
		return err
	}
	if _, found := s.detector.FindOverlap(sessionInterval(session), scheduleIntervals(schedule)); found {
		return apperrors.Conflict(apperrors.ErrTimeConflict, "time conflicts")
	}
	return nil
}

// UnregisterSession removes the caller's session booking
func (s *sessionServiceImpl) UnregisterSession(ctx context.Context, enrollmentID int64) error {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{"enrollmentID": enrollmentID, "studentID": p.UserID}

	enrollment, err := s.store.GetSessionEnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return failure(s.logger, "unregister session", err, fields)
	}
	if enrollment == nil {
		return apperrors.NewResourceNotFoundError("session enrollment not found")
	}
	if enrollment.StudentID != p.UserID {
		return apperrors.NewForbiddenError("session enrollment belongs to another student")
	}

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := tx.LockStudentSchedule(ctx, p.UserID); err != nil {
			return err
		}
		if _, err := tx.GetSessionForUpdate(ctx, enrollment.SessionID); err != nil {
			return err
		}
		if err := tx.DeleteSessionEnrollment(ctx, enrollmentID); err != nil {
			return notFound(err, "session enrollment not found")
		}
		return s.ledger.Adjust(ctx, tx, SessionRef(enrollment.SessionID), -1)
	})
	if err != nil {
		return failure(s.logger, "unregister session", err, fields)
	}

	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditSessionUnregistered,
		EntityType: "session_enrollment",
		EntityID:   enrollmentID,
		Details:    map[string]any{"sessionId": enrollment.SessionID},
	})
	return nil
}

// ListScheduleByStudent returns a student's booked sessions in start order
func (s *sessionServiceImpl) ListScheduleByStudent(ctx context.Context, studentID int64) ([]models.ScheduledSession, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateSelfOrAdmin(p, studentID); err != nil {
		return nil, err
	}

	schedule, err := s.store.ListStudentSchedule(ctx, studentID)
	if err != nil {
		return nil, failure(s.logger, "list schedule", err, map[string]interface{}{"studentID": studentID})
	}
	if schedule == nil {
		schedule = []models.ScheduledSession{}
	}
	return schedule, nil
}

// ListSessionsByOffering returns the sessions of an offering in start order
func (s *sessionServiceImpl) ListSessionsByOffering(ctx context.Context, offeringID int64) ([]*models.Session, error) {
	fields := map[string]interface{}{"offeringID": offeringID}

	offering, err := s.store.GetOfferingByID(ctx, offeringID)
	if err != nil {
		return nil, failure(s.logger, "list sessions", err, fields)
	}
	if offering == nil {
		return nil, apperrors.NewResourceNotFoundError("offering not found")
	}

	sessions, err := s.store.ListSessionsByOffering(ctx, offeringID)
	if err != nil {
		return nil, failure(s.logger, "list sessions", err, fields)
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return sessions, nil
}
