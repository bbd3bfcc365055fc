package models

import "time"

// OfferingStatus is the lifecycle state of an offering
type OfferingStatus string

const (
	OfferingActive    OfferingStatus = "ACTIVE"
	OfferingInactive  OfferingStatus = "INACTIVE"
	OfferingCancelled OfferingStatus = "CANCELLED"
	OfferingCompleted OfferingStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s OfferingStatus) Valid() bool {
	switch s {
	case OfferingActive, OfferingInactive, OfferingCancelled, OfferingCompleted:
		return true
	}
	return false
}

// Offering is a bookable class of a course run by one instructor.
type Offering struct {
	ID            int64          `json:"id" db:"id"`
	CourseID      int64          `json:"courseId" db:"course_id"`
	InstructorID  int64          `json:"instructorId" db:"instructor_id"`
	Capacity      *int           `json:"capacity,omitempty" db:"capacity"` // nil = unbounded
	EnrolledCount int            `json:"enrolledCount" db:"enrolled_count"`
	Status        OfferingStatus `json:"status" db:"status"`
	Year          int            `json:"year" db:"year"`
	Term          Term           `json:"term" db:"term"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" db:"updated_at"`

	// Relations (populated when needed)
	Course *Course `json:"course,omitempty"`
}

// RemainingCapacity returns the free seats and whether the offering is bounded at all.
func (o *Offering) RemainingCapacity() (int, bool) {
	if o.Capacity == nil {
		return 0, false
	}
	remaining := *o.Capacity - o.EnrolledCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
