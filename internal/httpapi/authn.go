package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"corevault.org/internal/identity"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth verifies the bearer token and resolves the full principal: the
// account plus its governance profile. Handlers downstream read both from
// the context; none of them touch the token again.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.deps.Tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.deps.Tokens.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		principal, err := a.resolvePrincipal(r, claims.Subject)
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrNotFound):
				respondError(w, http.StatusUnauthorized, "invalid token")
			case errors.Is(err, identity.ErrProfileMissing):
				// An account without a profile is a data fault, not a bad
				// credential. Fail loudly so it gets fixed.
				respondError(w, http.StatusInternalServerError, "account has no profile")
			default:
				respondError(w, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (a *API) resolvePrincipal(r *http.Request, accountID string) (identity.Principal, error) {
	acct, err := a.deps.Identity.GetAccount(r.Context(), accountID)
	if err != nil {
		return identity.Principal{}, err
	}
	profile, err := a.deps.Identity.GetProfile(r.Context(), accountID)
	if err != nil {
		return identity.Principal{}, err
	}
	return identity.Principal{Account: acct, Profile: profile}, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
