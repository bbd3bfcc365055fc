package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/app/repositories"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/dberrors"
)

var errTokenVanished = errors.New("request token reported as duplicate but not found")

// submission describes one submit-once operation on records of type T.
type submission[T any] struct {
	op              string
	token           *string
	tokenConstraint string
	pairConstraint  string

	byToken  func(ctx context.Context, token string) (*T, error)
	byPair   func(ctx context.Context) (*T, error)
	validate func(ctx context.Context) error
	create   func(ctx context.Context, tx repositories.Tx) (*T, error)
}

// submitOnce runs sub and reports whether the returned record was an existing one replayed
// for the same token. A record already stored under the token is returned before any
// validation. Uniqueness is enforced by the store; the lookups only avoid a doomed insert.
func submitOnce[T any](ctx context.Context, store repositories.Store, logger zerolog.Logger, sub submission[T]) (*T, bool, error) {
	var fields map[string]interface{}
	if sub.token != nil {
		fields = map[string]interface{}{"requestToken": *sub.token}

		existing, err := sub.byToken(ctx, *sub.token)
		if err != nil {
			return nil, false, failure(logger, sub.op, err, fields)
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	if err := sub.validate(ctx); err != nil {
		return nil, false, failure(logger, sub.op, err, fields)
	}

	existing, err := sub.byPair(ctx)
	if err != nil {
		return nil, false, failure(logger, sub.op, err, fields)
	}
	if existing != nil {
		// The pair may have been stored by a concurrent retry carrying the same token.
		if sub.token != nil {
			winner, err := sub.byToken(ctx, *sub.token)
			if err != nil {
				return nil, false, failure(logger, sub.op, err, fields)
			}
			if winner != nil {
				return winner, true, nil
			}
		}
		return nil, false, apperrors.Conflict(apperrors.ErrAlreadySubmitted, "already submitted for this student and offering")
	}

	var record *T
	err = store.WithTransaction(ctx, func(ctx context.Context, tx repositories.Tx) error {
		created, err := sub.create(ctx, tx)
		if err != nil {
			return err
		}
		record = created
		return nil
	})
	if err == nil {
		return record, false, nil
	}

	tokenTaken := dberrors.IsDuplicateConstraintError(err, sub.tokenConstraint)
	pairTaken := dberrors.IsDuplicateConstraintError(err, sub.pairConstraint)
	if !tokenTaken && !pairTaken {
		return nil, false, failure(logger, sub.op, err, fields)
	}

	// A concurrent submission won. With the same token it is this request's own retry.
	if sub.token != nil {
		winner, rerr := sub.byToken(ctx, *sub.token)
		if rerr != nil {
			return nil, false, failure(logger, sub.op, rerr, fields)
		}
		if winner != nil {
			return winner, true, nil
		}
		if tokenTaken {
			return nil, false, inconsistent(logger, sub.op, errTokenVanished, fields)
		}
	}
	return nil, false, apperrors.Conflict(apperrors.ErrAlreadySubmitted, "already submitted for this student and offering")
}

// normalizeToken returns the canonical form of a UUID token; blank means no token.
func normalizeToken(token *string) (*string, error) {
	if token == nil || strings.TrimSpace(*token) == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(strings.TrimSpace(*token))
	if err != nil {
		return nil, apperrors.NewValidationError("requestToken must be a UUID").
			WithDetails(map[string]interface{}{"requestToken": "requestToken must be a UUID"})
	}
	canonical := parsed.String()
	return &canonical, nil
}

// meanRounded is the mean of values rounded to two decimals.
func meanRounded(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return math.Round(float64(sum)/float64(len(values))*100) / 100
}
