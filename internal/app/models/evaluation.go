package models

import "time"

// SubmissionStatus is the moderation state of evaluations and feedback.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionApproved  SubmissionStatus = "APPROVED"
	SubmissionRejected  SubmissionStatus = "REJECTED"
)

// Evaluation is an instructor's assessment of one student in one offering.
type Evaluation struct {
	ID           int64              `json:"id" db:"id"`
	StudentID    int64              `json:"studentId" db:"student_id"`
	OfferingID   int64              `json:"offeringId" db:"offering_id"`
	EvaluatorID  int64              `json:"evaluatorId" db:"evaluator_id"`
	RequestToken *string            `json:"requestToken,omitempty" db:"request_token"`
	OverallScore float64            `json:"overallScore" db:"overall_score"`
	Comment      *string            `json:"comment,omitempty" db:"comment"`
	Status       SubmissionStatus   `json:"status" db:"status"`
	CreatedAt    time.Time          `json:"createdAt" db:"created_at"`
	Metrics      []EvaluationMetric `json:"metrics"`
}

// EvaluationMetric is one scored criterion of an evaluation.
type EvaluationMetric struct {
	ID           int64   `json:"id" db:"id"`
	EvaluationID int64   `json:"evaluationId" db:"evaluation_id"`
	Name         string  `json:"name" db:"name"`
	Score        int     `json:"score" db:"score"`
	Comment      *string `json:"comment,omitempty" db:"comment"`
}

// Feedback is a student's rating of an offering they attend.
type Feedback struct {
	ID            int64            `json:"id" db:"id"`
	StudentID     int64            `json:"studentId" db:"student_id"`
	OfferingID    int64            `json:"offeringId" db:"offering_id"`
	RequestToken  *string          `json:"requestToken,omitempty" db:"request_token"`
	OverallRating float64          `json:"overallRating" db:"overall_rating"`
	Comment       *string          `json:"comment,omitempty" db:"comment"`
	Anonymous     bool             `json:"anonymous" db:"anonymous"`
	Status        SubmissionStatus `json:"status" db:"status"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
	Ratings       []FeedbackRating `json:"ratings"`
}

// FeedbackRating is the rating of one aspect of an offering.
type FeedbackRating struct {
	ID         int64  `json:"id" db:"id"`
	FeedbackID int64  `json:"feedbackId" db:"feedback_id"`
	Aspect     string `json:"aspect" db:"aspect"`
	Rating     int    `json:"rating" db:"rating"`
}
