package services

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
	"github.com/yigit/unisphere-enrollment/internal/pkg/dberrors"
)

// failure passes business outcomes through unchanged. A unique violation the caller did not
// map itself becomes a conflict. Anything else is logged at error level with op and fields and
// returned as a fatal error. Errors that are already fatal are returned as they are so they get
// logged once.
func failure(logger zerolog.Logger, op string, err error, fields map[string]interface{}) error {
	if err == nil {
		return nil
	}
	if apperrors.IsExpected(err) || errors.Is(err, apperrors.ErrFatal) {
		return err
	}
	if dberrors.IsUniqueViolation(err) {
		logger.Warn().Err(err).Str("op", op).Str("constraint", dberrors.ConstraintName(err)).Fields(fields).Msg("Unmapped unique violation")
		return apperrors.NewConflictError("A conflicting record already exists")
	}
	logger.Error().Err(err).Str("op", op).Fields(fields).Msg("Operation failed")
	return apperrors.NewFatalError(op, err)
}

// inconsistent reports a store that contradicts itself, for example a unique violation
// whose conflicting row cannot be read back.
func inconsistent(logger zerolog.Logger, op string, cause error, fields map[string]interface{}) error {
	logger.Error().Err(cause).Str("op", op).Fields(fields).Msg("Store is inconsistent")
	return apperrors.NewFatalError(op, cause)
}
