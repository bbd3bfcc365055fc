package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
)

const sessionColumns = "id, offering_id, title, start_time, end_time, capacity, current_participants, status, created_at, updated_at"

// SessionRepository handles database operations for sessions
type SessionRepository struct {
	db Querier
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.OfferingID, &s.Title, &s.StartTime, &s.EndTime,
		&s.Capacity, &s.CurrentParticipants, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) getOne(ctx context.Context, query string, id int64) (*models.Session, error) {
	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving session: %w", err)
	}
	return session, nil
}

// CreateSession inserts a new session
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (offering_id, title, start_time, end_time, capacity, current_participants, status)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
		RETURNING id, current_participants, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		session.OfferingID, session.Title, session.StartTime, session.EndTime, session.Capacity, session.Status,
	).Scan(&session.ID, &session.CurrentParticipants, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating session: %w", err)
	}
	return nil
}

// GetSessionByID retrieves a session by ID
func (r *SessionRepository) GetSessionByID(ctx context.Context, id int64) (*models.Session, error) {
	return r.getOne(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = $1", id)
}

// GetSessionForUpdate retrieves a session and locks its row until the transaction ends
func (r *SessionRepository) GetSessionForUpdate(ctx context.Context, id int64) (*models.Session, error) {
	return r.getOne(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = $1 FOR UPDATE", id)
}

// ListSessionsByOffering lists the sessions of an offering in start order
func (r *SessionRepository) ListSessionsByOffering(ctx context.Context, offeringID int64) ([]*models.Session, error) {
	rows, err := r.db.Query(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE offering_id = $1 ORDER BY start_time, id", offeringID)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSessionTimes moves a session
func (r *SessionRepository) UpdateSessionTimes(ctx context.Context, id int64, start time.Time, end *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET start_time = $1, end_time = $2, updated_at = NOW() WHERE id = $3`,
		start, end, id)
	if err != nil {
		return fmt.Errorf("error rescheduling session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session; its enrollments cascade
func (r *SessionRepository) DeleteSession(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustSessionParticipants applies delta to current_participants conditionally
func (r *SessionRepository) AdjustSessionParticipants(ctx context.Context, id int64, delta int) (bool, error) {
	query := `
		UPDATE sessions
		SET current_participants = GREATEST(current_participants + $2, 0), updated_at = NOW()
		WHERE id = $1 AND ($2 <= 0 OR current_participants + $2 <= capacity)
	`
	tag, err := r.db.Exec(ctx, query, id, delta)
	if err != nil {
		return false, fmt.Errorf("error adjusting session participants: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
