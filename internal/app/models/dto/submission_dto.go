package dto

// EvaluationMetricInput is one scored criterion.
type EvaluationMetricInput struct {
	Name    string  `json:"name" validate:"required,max=100"`
	Score   int     `json:"score" validate:"required,gte=1,lte=5"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

// SubmitEvaluationRequest is an instructor's evaluation of a student. RequestToken makes
// retries return the first result.
type SubmitEvaluationRequest struct {
	StudentID    int64                   `json:"studentId" validate:"required,gt=0"`
	OfferingID   int64                   `json:"offeringId" validate:"required,gt=0"`
	RequestToken *string                 `json:"requestToken,omitempty" validate:"omitempty,uuid"`
	Comment      *string                 `json:"comment,omitempty" validate:"omitempty,max=2000"`
	Metrics      []EvaluationMetricInput `json:"metrics" validate:"required,min=1,max=20,dive"`
}

// FeedbackRatingInput rates one aspect of an offering.
type FeedbackRatingInput struct {
	Aspect string `json:"aspect" validate:"required,max=100"`
	Rating int    `json:"rating" validate:"required,gte=1,lte=5"`
}

// SubmitFeedbackRequest is a student's feedback on an offering they are registered in.
type SubmitFeedbackRequest struct {
	OfferingID   int64                 `json:"offeringId" validate:"required,gt=0"`
	RequestToken *string               `json:"requestToken,omitempty" validate:"omitempty,uuid"`
	Comment      *string               `json:"comment,omitempty" validate:"omitempty,max=2000"`
	Anonymous    bool                  `json:"anonymous"`
	Ratings      []FeedbackRatingInput `json:"ratings" validate:"required,min=1,max=20,dive"`
}
