package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/bastionhq/bastion/internal/rbac"
	"github.com/bastionhq/bastion/internal/token"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const principalContextKey contextKey = "principal"

// Principal kinds
const (
	PrincipalAdmin    = "admin"
	PrincipalCustomer = "customer"
)

// Principal is the authenticated identity attached to a request
type Principal struct {
	ID    string
	Email string
	// Role is the coarse role claim carried by the credential, used as the
	// resolver's legacy fallback when the identity record is gone
	Role string
	Kind string
}

// AdminAuth validates an admin session JWT from the Authorization header and
// injects the principal into the request context
func AdminAuth(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			// Refresh tokens are only good for the refresh endpoint
			if claims.Type != "access" {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			principal := &Principal{
				ID:    claims.UserID,
				Email: claims.Email,
				Role:  claims.Role,
				Kind:  PrincipalAdmin,
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// CustomerAuth validates a compact customer bearer token
func CustomerAuth(issuer *token.Issuer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims := issuer.Verify(tokenString)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			principal := &Principal{
				ID:    claims.Subject,
				Email: claims.Email,
				Kind:  PrincipalCustomer,
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequirePermission authorizes the request's principal against the resolver.
// Authorization failure (403) is a distinct outcome from authentication
// failure (401).
func RequirePermission(resolver *rbac.Resolver, permission string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if !resolver.Has(r.Context(), principal.ID, principal.Role, permission) {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext extracts the authenticated principal, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return principal
}

// ContextWithPrincipal returns a context carrying the principal. Exposed so
// handler tests can exercise authenticated endpoints without the middleware.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
