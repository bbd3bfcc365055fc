package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/auth"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/models/dto"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/validation"
)

// OfferingService manages offerings and the courses they belong to
type OfferingService interface {
	CreateOffering(ctx context.Context, req *dto.CreateOfferingRequest) (*models.Offering, error)
	UpdateOffering(ctx context.Context, id int64, req *dto.UpdateOfferingRequest) (*models.Offering, error)
	DeleteOffering(ctx context.Context, id int64) error
	RenameCourse(ctx context.Context, courseID int64, req *dto.RenameCourseRequest) (*models.Course, error)
	GetOffering(ctx context.Context, id int64) (*models.Offering, error)
	ListOfferings(ctx context.Context, filter *dto.OfferingFilter) (*dto.Page[*models.Offering], error)
}

// offeringServiceImpl implements OfferingService
type offeringServiceImpl struct {
	store    repositories.Store
	resolver CourseResolver
	audit    AuditSink
	logger   zerolog.Logger
}

// NewOfferingService creates a new OfferingService
func NewOfferingService(
	store repositories.Store,
	resolver CourseResolver,
	audit AuditSink,
	logger zerolog.Logger,
) OfferingService {
	return &offeringServiceImpl{
		store:    store,
		resolver: resolver,
		audit:    audit,
		logger:   logger.With().Str("component", "offering_service").Logger(),
	}
}

// CreateOffering opens an offering, creating its course on first use of the code
func (s *offeringServiceImpl) CreateOffering(ctx context.Context, req *dto.CreateOfferingRequest) (*models.Offering, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidateInstructor(p); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	// Get or create the course
	course, err := s.resolver.Resolve(ctx, req.CourseCode, CourseFields{
		Name:         req.CourseName,
		DepartmentID: req.DepartmentID,
		Credits:      req.Credits,
	})
	if err != nil {
		return nil, err
	}

	offering := &models.Offering{
		CourseID:     course.ID,
		InstructorID: p.UserID,
		Capacity:     req.Capacity,
		Status:       models.OfferingActive,
		Year:         req.Year,
		Term:         req.Term,
	}
	if err := s.store.CreateOffering(ctx, offering); err != nil {
		return nil, failure(s.logger, "create offering", err, map[string]interface{}{"courseID": course.ID})
	}
	offering.Course = course

	s.logger.Info().Int64("offeringID", offering.ID).Str("courseCode", course.Code).Msg("Offering created")
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditOfferingCreated,
		EntityType: "offering",
		EntityID:   offering.ID,
		Details:    map[string]any{"courseCode": course.Code, "capacity": offering.Capacity},
	})
	return offering, nil
}

// UpdateOffering changes capacity, status or term of an offering owned by the caller.
// Capacity may not drop below the current enrolled count.
func (s *offeringServiceImpl) UpdateOffering(ctx context.Context, id int64, req *dto.UpdateOfferingRequest) (*models.Offering, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.ClearCapacity && req.Capacity != nil {
		return nil, apperrors.NewValidationError("capacity and clearCapacity cannot be combined")
	}

	var updated *models.Offering
	changes := map[string]any{}
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		offering, err := tx.GetOfferingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if offering == nil {
			return apperrors.NewResourceNotFoundError("offering not found")
		}
		if err := auth.ValidateOfferingOwnership(p, offering); err != nil {
			return err
		}

		switch {
		case req.ClearCapacity:
			offering.Capacity = nil
			changes["capacity"] = nil
		case req.Capacity != nil:
			if *req.Capacity < offering.EnrolledCount {
				return apperrors.NewConflictError("capacity cannot be lower than the number of enrolled students")
			}
			offering.Capacity = req.Capacity
			changes["capacity"] = *req.Capacity
		}
		if req.Status != nil {
			offering.Status = *req.Status
			changes["status"] = *req.Status
		}
		if req.Year != nil {
			offering.Year = *req.Year
			changes["year"] = *req.Year
		}
		if req.Term != nil {
			offering.Term = *req.Term
			changes["term"] = *req.Term
		}

		if err := tx.UpdateOffering(ctx, offering); err != nil {
			return notFound(err, "offering not found")
		}
		updated = offering
		return nil
	})
	if err != nil {
		return nil, failure(s.logger, "update offering", err, map[string]interface{}{"offeringID": id})
	}

	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditOfferingUpdated,
		EntityType: "offering",
		EntityID:   id,
		Details:    changes,
	})
	return updated, nil
}

// DeleteOffering removes an offering owned by the caller together with its bookings
func (s *offeringServiceImpl) DeleteOffering(ctx context.Context, id int64) error {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return err
	}

	offering, err := s.store.GetOfferingByID(ctx, id)
	if err != nil {
		return failure(s.logger, "delete offering", err, map[string]interface{}{"offeringID": id})
	}
	if offering == nil {
		return apperrors.NewResourceNotFoundError("offering not found")
	}
	if err := auth.ValidateOfferingOwnership(p, offering); err != nil {
		return err
	}

	if err := s.store.DeleteOffering(ctx, id); err != nil {
		return failure(s.logger, "delete offering", notFound(err, "offering not found"), map[string]interface{}{"offeringID": id})
	}

	s.logger.Info().Int64("offeringID", id).Msg("Offering deleted")
	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditOfferingDeleted,
		EntityType: "offering",
		EntityID:   id,
		Details:    map[string]any{"courseID": offering.CourseID, "enrolledCount": offering.EnrolledCount},
	})
	return nil
}

// RenameCourse changes the display name of a course. Administrators only.
func (s *offeringServiceImpl) RenameCourse(ctx context.Context, courseID int64, req *dto.RenameCourseRequest) (*models.Course, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidateAdmin(p); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"courseID": courseID}
	if err := s.store.RenameCourse(ctx, courseID, req.Name); err != nil {
		return nil, failure(s.logger, "rename course", notFound(err, "course not found"), fields)
	}

	course, err := s.store.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, failure(s.logger, "rename course", err, fields)
	}
	if course == nil {
		return nil, apperrors.NewResourceNotFoundError("course not found")
	}

	s.audit.Record(ctx, models.AuditEntry{
		ActorID:    p.UserID,
		Action:     models.AuditCourseRenamed,
		EntityType: "course",
		EntityID:   courseID,
		Details:    map[string]any{"name": req.Name},
	})
	return course, nil
}

// GetOffering returns an offering with its course
func (s *offeringServiceImpl) GetOffering(ctx context.Context, id int64) (*models.Offering, error) {
	fields := map[string]interface{}{"offeringID": id}

	offering, err := s.store.GetOfferingByID(ctx, id)
	if err != nil {
		return nil, failure(s.logger, "get offering", err, fields)
	}
	if offering == nil {
		return nil, apperrors.NewResourceNotFoundError("offering not found")
	}

	course, err := s.store.GetCourseByID(ctx, offering.CourseID)
	if err != nil {
		return nil, failure(s.logger, "get offering", err, fields)
	}
	offering.Course = course
	return offering, nil
}

// ListOfferings lists offerings by course code, instructor and status
func (s *offeringServiceImpl) ListOfferings(ctx context.Context, filter *dto.OfferingFilter) (*dto.Page[*models.Offering], error) {
	if filter == nil {
		filter = &dto.OfferingFilter{}
	}
	if err := validation.Struct(filter); err != nil {
		return nil, err
	}

	normalized := *filter
	if normalized.CourseCode != nil {
		code := NormalizeCourseCode(*normalized.CourseCode)
		normalized.CourseCode = &code
	}

	offerings, total, err := s.store.ListOfferings(ctx, normalized)
	if err != nil {
		return nil, failure(s.logger, "list offerings", err, nil)
	}
	return newPage(offerings, total, filter.PageRequest), nil
}
