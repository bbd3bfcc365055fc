package dberrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateConstraintError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: UniqueViolation, ConstraintName: "courses_code_key"}
	wrapped := fmt.Errorf("insert course: %w", pgErr)

	assert.True(t, IsDuplicateConstraintError(wrapped, "courses_code_key"))
	assert.False(t, IsDuplicateConstraintError(wrapped, "offerings_pkey"))
	assert.True(t, IsUniqueViolation(wrapped))
	assert.Equal(t, "courses_code_key", ConstraintName(wrapped))

	fk := &pgconn.PgError{Code: "23503", ConstraintName: "courses_code_key"}
	assert.False(t, IsDuplicateConstraintError(fk, "courses_code_key"))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.Empty(t, ConstraintName(errors.New("plain")))
}
