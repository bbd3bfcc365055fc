package auth

import (
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
)

// ValidateInstructor ensures the principal may create teaching resources.
func ValidateInstructor(p Principal) error {
	if p.Role != models.RoleInstructor && !p.IsAdmin() {
		return apperrors.NewForbiddenError("only instructors can perform this action")
	}
	return nil
}

// ValidateStudent ensures the principal acts as a student.
func ValidateStudent(p Principal) error {
	if p.Role != models.RoleStudent {
		return apperrors.NewForbiddenError("only students can perform this action")
	}
	return nil
}

// ValidateAdmin ensures the principal is an administrator.
func ValidateAdmin(p Principal) error {
	if !p.IsAdmin() {
		return apperrors.NewForbiddenError("only administrators can perform this action")
	}
	return nil
}

// ValidateOfferingOwnership allows only the offering's instructor to mutate it.
func ValidateOfferingOwnership(p Principal, offering *models.Offering) error {
	if offering.InstructorID != p.UserID {
		return apperrors.NewForbiddenError("you don't have permission for this offering")
	}
	return nil
}

// ValidateOfferingStaff allows the offering's instructor, or an administrator override.
func ValidateOfferingStaff(p Principal, offering *models.Offering) error {
	if p.IsAdmin() {
		return nil
	}
	if p.Role != models.RoleInstructor {
		return apperrors.NewForbiddenError("only the assigned instructor can perform this action")
	}
	return ValidateOfferingOwnership(p, offering)
}
