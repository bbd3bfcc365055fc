package auth

import (
	"context"

	"github.com/yigit/unisphere-enrollment/internal/app/models"
	"github.com/yigit/unisphere-enrollment/internal/pkg/apperrors"
)

// Principal is the authenticated actor supplied by the calling layer. This module never
// authenticates; it only trusts what the principal provider put into the context.
type Principal struct {
	UserID int64
	Email  string
	Role   models.RoleType
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the actor of the current call.
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID <= 0 {
		return Principal{}, apperrors.NewForbiddenError("authenticated principal required")
	}
	return p, nil
}

// IsAdmin reports whether p may override ownership checks.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}
