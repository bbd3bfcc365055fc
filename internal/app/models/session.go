package models

import "time"

// SessionStatus is the lifecycle state of a session
type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionCompleted SessionStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionActive, SessionCancelled, SessionCompleted:
		return true
	}
	return false
}

// Session is a single meeting of an offering with its own capacity.
type Session struct {
	ID                  int64         `json:"id" db:"id"`
	OfferingID          int64         `json:"offeringId" db:"offering_id"`
	Title               string        `json:"title" db:"title"`
	StartTime           time.Time     `json:"startTime" db:"start_time"`
	EndTime             *time.Time    `json:"endTime,omitempty" db:"end_time"` // nil = open-ended
	Capacity            int           `json:"capacity" db:"capacity"`
	CurrentParticipants int           `json:"currentParticipants" db:"current_participants"`
	Status              SessionStatus `json:"status" db:"status"`
	CreatedAt           time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time     `json:"updatedAt" db:"updated_at"`
}
