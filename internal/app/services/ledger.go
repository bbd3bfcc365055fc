package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
)

// ResourceKind distinguishes the two counted resources.
type ResourceKind string

const (
	ResourceOffering ResourceKind = "offering"
	ResourceSession  ResourceKind = "session"
)

// ResourceRef identifies a counted resource.
type ResourceRef struct {
	Kind ResourceKind
	ID   int64
}

// OfferingRef returns the ledger key of an offering.
func OfferingRef(id int64) ResourceRef { return ResourceRef{Kind: ResourceOffering, ID: id} }

// SessionRef returns the ledger key of a session.
func SessionRef(id int64) ResourceRef { return ResourceRef{Kind: ResourceSession, ID: id} }

// CapacityLedger answers admission questions against the occupancy counters. Both methods
// take the Tx of the booking they belong to so the check, the booking and the counter
// change commit or roll back together.
type CapacityLedger interface {
	HasRoom(ctx context.Context, tx repositories.Tx, ref ResourceRef) (bool, error)
	Adjust(ctx context.Context, tx repositories.Tx, ref ResourceRef, delta int) error
}

type capacityLedger struct {
	logger zerolog.Logger
}

// NewCapacityLedger creates a CapacityLedger
func NewCapacityLedger(logger zerolog.Logger) CapacityLedger {
	return &capacityLedger{logger: logger.With().Str("component", "capacity_ledger").Logger()}
}

// hasRoom treats a nil capacity as unbounded.
func hasRoom(capacity *int, occupants int) bool {
	return capacity == nil || occupants < *capacity
}

// HasRoom locks the resource row and compares its counter with its capacity.
func (l *capacityLedger) HasRoom(ctx context.Context, tx repositories.Tx, ref ResourceRef) (bool, error) {
	switch ref.Kind {
	case ResourceOffering:
		offering, err := tx.GetOfferingForUpdate(ctx, ref.ID)
		if err != nil {
			return false, err
		}
		if offering == nil {
			return false, apperrors.NewResourceNotFoundError("offering not found")
		}
		return hasRoom(offering.Capacity, offering.EnrolledCount), nil
	case ResourceSession:
		session, err := tx.GetSessionForUpdate(ctx, ref.ID)
		if err != nil {
			return false, err
		}
		if session == nil {
			return false, apperrors.NewResourceNotFoundError("session not found")
		}
		capacity := session.Capacity
		return hasRoom(&capacity, session.CurrentParticipants), nil
	default:
		return false, fmt.Errorf("unknown resource kind %q", ref.Kind)
	}
}

// Adjust applies delta with a conditional update. A refused increment means another booking
// took the last slot after HasRoom and is reported as full. Decrements floor at zero.
func (l *capacityLedger) Adjust(ctx context.Context, tx repositories.Tx, ref ResourceRef, delta int) error {
	if delta == 0 {
		return nil
	}

	var (
		applied bool
		err     error
	)
	switch ref.Kind {
	case ResourceOffering:
		applied, err = tx.AdjustOfferingEnrollment(ctx, ref.ID, delta)
	case ResourceSession:
		applied, err = tx.AdjustSessionParticipants(ctx, ref.ID, delta)
	default:
		return fmt.Errorf("unknown resource kind %q", ref.Kind)
	}
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	if delta < 0 {
		// The row is gone; nothing left to release.
		l.logger.Warn().Str("kind", string(ref.Kind)).Int64("id", ref.ID).Int("delta", delta).
			Msg("Counter decrement found no row")
		return nil
	}
	if ref.Kind == ResourceSession {
		return apperrors.Conflict(apperrors.ErrSessionFull, "Session is full")
	}
	return apperrors.Conflict(apperrors.ErrClassFull, "Class is full")
}
