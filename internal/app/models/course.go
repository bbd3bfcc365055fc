package models

import "time"

// Course is the shared catalogue entry identified by its code. Offerings of any instructor
// reference the same row; only the name may change after creation.
type Course struct {
	ID           int64     `json:"id" db:"id"`
	Code         string    `json:"code" db:"code"`
	Name         string    `json:"name" db:"name"`
	DepartmentID *int64    `json:"departmentId,omitempty" db:"department_id"` // Nullable
	Description  *string   `json:"description,omitempty" db:"description"`    // Nullable
	Credits      int       `json:"credits" db:"credits"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
