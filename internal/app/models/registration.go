package models

import "time"

// Registration is a student's booking of an offering. CourseID is denormalized so the store
// can enforce one registration per student and course.
type Registration struct {
	ID         int64     `json:"id" db:"id"`
	StudentID  int64     `json:"studentId" db:"student_id"`
	OfferingID int64     `json:"offeringId" db:"offering_id"`
	CourseID   int64     `json:"courseId" db:"course_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// SessionEnrollment is a student's booking of a session.
type SessionEnrollment struct {
	ID         int64     `json:"id" db:"id"`
	StudentID  int64     `json:"studentId" db:"student_id"`
	SessionID  int64     `json:"sessionId" db:"session_id"`
	OfferingID int64     `json:"offeringId" db:"offering_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// ScheduledSession is one row of a student's schedule: the enrollment joined with its session times.
type ScheduledSession struct {
	EnrollmentID int64         `json:"enrollmentId"`
	SessionID    int64         `json:"sessionId"`
	OfferingID   int64         `json:"offeringId"`
	Title        string        `json:"title"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"`
	Status       SessionStatus `json:"status"`
}
