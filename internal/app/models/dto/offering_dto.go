package dto

import "github.com/yigit/unisphere-enrollment/internal/app/models"

// CreateOfferingRequest opens a new offering. The course is resolved by code and created
// from CourseName/DepartmentID/Credits when it does not exist yet.
type CreateOfferingRequest struct {
	CourseCode   string      `json:"courseCode" validate:"required,min=2,max=20"`
	CourseName   string      `json:"courseName" validate:"required,min=2,max=200"`
	DepartmentID *int64      `json:"departmentId,omitempty" validate:"omitempty,gt=0"`
	Credits      int         `json:"credits" validate:"gte=0,lte=30"`
	Capacity     *int        `json:"capacity,omitempty" validate:"omitempty,gte=1"`
	Year         int         `json:"year" validate:"required,gte=2000,lte=2100"`
	Term         models.Term `json:"term" validate:"required,oneof=FALL SPRING SUMMER"`
}

// UpdateOfferingRequest changes mutable offering fields; nil fields are left as they are.
type UpdateOfferingRequest struct {
	Capacity      *int                   `json:"capacity,omitempty" validate:"omitempty,gte=1"`
	ClearCapacity bool                   `json:"clearCapacity"`
	Status        *models.OfferingStatus `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE INACTIVE CANCELLED COMPLETED"`
	Year          *int                   `json:"year,omitempty" validate:"omitempty,gte=2000,lte=2100"`
	Term          *models.Term           `json:"term,omitempty" validate:"omitempty,oneof=FALL SPRING SUMMER"`
}

// RenameCourseRequest is the only permitted change to a course after creation.
type RenameCourseRequest struct {
	Name string `json:"name" validate:"required,min=2,max=200"`
}

// OfferingFilter narrows offering listings.
type OfferingFilter struct {
	CourseCode   *string                `json:"courseCode,omitempty"`
	InstructorID *int64                 `json:"instructorId,omitempty"`
	Status       *models.OfferingStatus `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE INACTIVE CANCELLED COMPLETED"`
	PageRequest
}
