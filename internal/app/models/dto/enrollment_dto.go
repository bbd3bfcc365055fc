package dto

import "time"

// EnrollRequest selects the target offering either by id or by course code. With a course code
// the active offering with the most remaining capacity is chosen.
type EnrollRequest struct {
	OfferingID *int64 `json:"offeringId,omitempty" validate:"required_without=CourseCode,omitempty,gt=0"`
	CourseCode string `json:"courseCode,omitempty" validate:"required_without=OfferingID,omitempty,max=20"`
}

// CreateSessionRequest schedules a session of an offering.
type CreateSessionRequest struct {
	OfferingID int64      `json:"offeringId" validate:"required,gt=0"`
	Title      string     `json:"title" validate:"required,max=200"`
	StartTime  time.Time  `json:"startTime" validate:"required"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Capacity   *int       `json:"capacity,omitempty" validate:"omitempty,gte=1"`
}

// RescheduleSessionRequest moves a session.
type RescheduleSessionRequest struct {
	StartTime time.Time  `json:"startTime" validate:"required"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}
