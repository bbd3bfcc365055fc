package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
)

// AuditSink records state changes. Record never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

type dbAuditSink struct {
	store   repositories.AuditStore
	timeout time.Duration
	logger  zerolog.Logger
}

// NewAuditSink writes entries through store. Pass the pool-bound store, never a Tx: each
// entry is its own unit of work, written after the operation it describes has committed.
func NewAuditSink(store repositories.AuditStore, timeout time.Duration, logger zerolog.Logger) AuditSink {
	return &dbAuditSink{
		store:   store,
		timeout: timeout,
		logger:  logger.With().Str("component", "audit").Logger(),
	}
}

// Record writes entry, detached from the caller's cancellation. Failures are logged and dropped.
func (s *dbAuditSink) Record(ctx context.Context, entry models.AuditEntry) {
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.store.CreateAuditEntry(ctx, &entry); err != nil {
		s.logger.Warn().Err(err).
			Str("action", string(entry.Action)).
			Str("entityType", entry.EntityType).
			Int64("entityID", entry.EntityID).
			Int64("actorID", entry.ActorID).
			Msg("Failed to record audit entry")
	}
}
