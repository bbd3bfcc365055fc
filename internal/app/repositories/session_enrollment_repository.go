package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
)

const sessionEnrollmentColumns = "id, student_id, session_id, offering_id, created_at"

// SessionEnrollmentRepository handles database operations for session enrollments
type SessionEnrollmentRepository struct {
	db Querier
}

// NewSessionEnrollmentRepository creates a new SessionEnrollmentRepository
func NewSessionEnrollmentRepository(db Querier) *SessionEnrollmentRepository {
	return &SessionEnrollmentRepository{db: db}
}

func scanSessionEnrollment(row pgx.Row) (*models.SessionEnrollment, error) {
	var e models.SessionEnrollment
	if err := row.Scan(&e.ID, &e.StudentID, &e.SessionID, &e.OfferingID, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// LockStudentSchedule takes a transaction-scoped advisory lock on the student's schedule.
// Outside a transaction the lock is released as soon as the statement ends.
func (r *SessionEnrollmentRepository) LockStudentSchedule(ctx context.Context, studentID int64) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('student_schedule:' || $1::bigint, 0))`, studentID)
	if err != nil {
		return fmt.Errorf("error locking student schedule: %w", err)
	}
	return nil
}

// CreateSessionEnrollment inserts a session enrollment
func (r *SessionEnrollmentRepository) CreateSessionEnrollment(ctx context.Context, enrollment *models.SessionEnrollment) error {
	query := `
		INSERT INTO session_enrollments (student_id, session_id, offering_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, enrollment.StudentID, enrollment.SessionID, enrollment.OfferingID).
		Scan(&enrollment.ID, &enrollment.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating session enrollment: %w", err)
	}
	return nil
}

// GetSessionEnrollmentByID retrieves a session enrollment by ID
func (r *SessionEnrollmentRepository) GetSessionEnrollmentByID(ctx context.Context, id int64) (*models.SessionEnrollment, error) {
	e, err := scanSessionEnrollment(r.db.QueryRow(ctx, "SELECT "+sessionEnrollmentColumns+" FROM session_enrollments WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving session enrollment: %w", err)
	}
	return e, nil
}

// HasSessionEnrollment reports whether the student is enrolled in the session
func (r *SessionEnrollmentRepository) HasSessionEnrollment(ctx context.Context, studentID, sessionID int64) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM session_enrollments WHERE student_id = $1 AND session_id = $2)`,
		studentID, sessionID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("error checking session enrollment: %w", err)
	}
	return found, nil
}

// DeleteSessionEnrollment removes a session enrollment
func (r *SessionEnrollmentRepository) DeleteSessionEnrollment(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM session_enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting session enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStudentSchedule returns every session the student is enrolled in, in start order
func (r *SessionEnrollmentRepository) ListStudentSchedule(ctx context.Context, studentID int64) ([]models.ScheduledSession, error) {
	query := `
		SELECT se.id, s.id, s.offering_id, s.title, s.start_time, s.end_time, s.status
		FROM session_enrollments se
		JOIN sessions s ON s.id = se.session_id
		WHERE se.student_id = $1
		ORDER BY s.start_time, s.id
	`
	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var schedule []models.ScheduledSession
	for rows.Next() {
		var s models.ScheduledSession
		if err := rows.Scan(&s.EnrollmentID, &s.SessionID, &s.OfferingID, &s.Title, &s.StartTime, &s.EndTime, &s.Status); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		schedule = append(schedule, s)
	}
	return schedule, rows.Err()
}

// ListSessionStudentIDs returns the ids of students enrolled in a session, ascending
func (r *SessionEnrollmentRepository) ListSessionStudentIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT student_id FROM session_enrollments WHERE session_id = $1 ORDER BY student_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListStudentEnrollmentsInOffering returns the student's session enrollments within one offering
func (r *SessionEnrollmentRepository) ListStudentEnrollmentsInOffering(ctx context.Context, studentID, offeringID int64) ([]*models.SessionEnrollment, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+sessionEnrollmentColumns+" FROM session_enrollments WHERE student_id = $1 AND offering_id = $2 ORDER BY id",
		studentID, offeringID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var enrollments []*models.SessionEnrollment
	for rows.Next() {
		e, err := scanSessionEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// CountCompletedSessions counts the COMPLETED sessions of an offering the student attended
func (r *SessionEnrollmentRepository) CountCompletedSessions(ctx context.Context, studentID, offeringID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM session_enrollments se
		JOIN sessions s ON s.id = se.session_id
		WHERE se.student_id = $1 AND se.offering_id = $2 AND s.status = $3
	`
	var count int
	if err := r.db.QueryRow(ctx, query, studentID, offeringID, models.SessionCompleted).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting completed sessions: %w", err)
	}
	return count, nil
}
