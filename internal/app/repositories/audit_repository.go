package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
)

// AuditRepository appends rows to audit_log
type AuditRepository struct {
	db Querier
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db Querier) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditEntry inserts an audit entry, assigning an id when it has none
func (r *AuditRepository) CreateAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("error encoding audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, details,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating audit entry: %w", err)
	}
	return nil
}
