package access

import (
	"context"
	"errors"
	"fmt"

	"corevault.org/internal/identity"
)

// ErrAccessDenied is the uniform external signal for every guard failure.
// The wrapped reason stays distinguishable for diagnostic logging.
var ErrAccessDenied = errors.New("access denied")

// Denial reasons. Each wraps ErrAccessDenied so callers can branch on the
// specific cause or treat all of them as forbidden.
var (
	ErrAuthenticationRequired = fmt.Errorf("%w: authentication required", ErrAccessDenied)
	ErrNoProfile              = fmt.Errorf("%w: user profile not found", ErrAccessDenied)
	ErrRoleNotAllowed         = fmt.Errorf("%w: role not authorized", ErrAccessDenied)
	ErrInsufficientClearance  = fmt.Errorf("%w: insufficient clearance level", ErrAccessDenied)
)

// RequirePrincipal resolves the authenticated principal from the context.
// Every other guard runs on top of it, so side effects gated behind a guard
// cannot start before identity is established.
func RequirePrincipal(ctx context.Context) (identity.Principal, error) {
	principal, ok := identity.PrincipalFromContext(ctx)
	if !ok {
		return identity.Principal{}, ErrAuthenticationRequired
	}
	if principal.Profile.AccountID == "" {
		return identity.Principal{}, ErrNoProfile
	}
	return principal, nil
}

// RequireRole passes only principals holding one of the allowed roles.
func RequireRole(ctx context.Context, allowed ...identity.Role) (identity.Principal, error) {
	principal, err := RequirePrincipal(ctx)
	if err != nil {
		return identity.Principal{}, err
	}
	for _, role := range allowed {
		if principal.Profile.Role == role {
			return principal, nil
		}
	}
	return identity.Principal{}, fmt.Errorf("%w (%s)", ErrRoleNotAllowed, principal.Profile.Role)
}

// RequireClearance passes only principals at or above the minimum clearance.
func RequireClearance(ctx context.Context, min identity.Clearance) (identity.Principal, error) {
	principal, err := RequirePrincipal(ctx)
	if err != nil {
		return identity.Principal{}, err
	}
	if principal.Profile.Clearance.Ordinal() < min.Ordinal() {
		return identity.Principal{}, ErrInsufficientClearance
	}
	return principal, nil
}

// RequireOrganisationScope returns the tenant all subsequent queries must be
// filtered by. An empty organisation id means the principal is unscoped and
// sees only unscoped data.
func RequireOrganisationScope(ctx context.Context) (string, error) {
	principal, err := RequirePrincipal(ctx)
	if err != nil {
		return "", err
	}
	return principal.Profile.OrganisationID, nil
}
