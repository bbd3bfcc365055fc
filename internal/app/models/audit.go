package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names a recorded state change.
type AuditAction string

const (
	AuditCourseCreated       AuditAction = "COURSE_CREATED"
	AuditCourseRenamed       AuditAction = "COURSE_RENAMED"
	AuditOfferingCreated     AuditAction = "OFFERING_CREATED"
	AuditOfferingUpdated     AuditAction = "OFFERING_UPDATED"
	AuditOfferingDeleted     AuditAction = "OFFERING_DELETED"
	AuditSessionCreated      AuditAction = "SESSION_CREATED"
	AuditSessionRescheduled  AuditAction = "SESSION_RESCHEDULED"
	AuditSessionDeleted      AuditAction = "SESSION_DELETED"
	AuditEnrolled            AuditAction = "ENROLLED"
	AuditExited              AuditAction = "EXITED"
	AuditSessionRegistered   AuditAction = "SESSION_REGISTERED"
	AuditSessionUnregistered AuditAction = "SESSION_UNREGISTERED"
	AuditEvaluationSubmitted AuditAction = "EVALUATION_SUBMITTED"
	AuditFeedbackSubmitted   AuditAction = "FEEDBACK_SUBMITTED"
)

// AuditEntry is an immutable record of who changed what.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	ActorID    int64          `json:"actorId" db:"actor_id"`
	Action     AuditAction    `json:"action" db:"action"`
	EntityType string         `json:"entityType" db:"entity_type"`
	EntityID   int64          `json:"entityId" db:"entity_id"`
	Details    map[string]any `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time      `json:"createdAt" db:"created_at"`
}
