package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/handlers"
	"github.com/bastionhq/bastion/internal/middleware"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/ratelimit"
	"github.com/bastionhq/bastion/internal/rbac"
	"github.com/bastionhq/bastion/internal/token"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Auth     *handlers.AuthHandler
	MFA      *handlers.MFAHandler
	Users    *handlers.UserHandler
	Roles    *handlers.RoleHandler
	Audit    *handlers.AuditHandler
	Settings *handlers.SettingsHandler
}

// Deps carries the middleware dependencies shared across routes
type Deps struct {
	TokenManager *auth.TokenManager
	Issuer       *token.Issuer
	Limiter      *ratelimit.Limiter
	Resolver     *rbac.Resolver
	Settings     middleware.SettingsSource
	Logger       *slog.Logger
}

// RegisterRoutes mounts all application routes. The ban gate and allow-list
// gate sit in front of everything, including login.
func RegisterRoutes(router chi.Router, h Handlers, deps Deps) {
	router.Use(middleware.AllowListGate(deps.Settings, deps.Logger))
	router.Use(middleware.BanGate(deps.Limiter))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public auth endpoints. The services enforce the login limiter
	// themselves so failures can feed the strike ledger; stacking the
	// middleware limiter here would double-count every attempt.
	router.Group(func(r chi.Router) {
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/mfa/verify", h.Auth.VerifyMFA)
		r.Post("/auth/mfa/recovery", h.Auth.RecoveryLogin)
	})
	router.With(middleware.RateLimit(deps.Limiter, ratelimit.TypeGeneral)).
		Post("/auth/refresh", h.Auth.Refresh)

	// Admin session required
	router.Group(func(r chi.Router) {
		r.Use(auth.AdminAuth(deps.TokenManager))
		r.Use(middleware.RateLimit(deps.Limiter, ratelimit.TypeAPI))

		r.Post("/auth/logout", h.Auth.Logout)

		// 2FA self-service
		r.Get("/auth/mfa", h.MFA.Status)
		r.Post("/auth/mfa/enroll", h.MFA.Enroll)
		r.Post("/auth/mfa/confirm", h.MFA.Confirm)
		r.With(middleware.RateLimit(deps.Limiter, ratelimit.TypeSensitive)).
			Post("/auth/mfa/disable", h.MFA.Disable)

		// User administration
		r.With(auth.RequirePermission(deps.Resolver, models.PermUsersRead)).
			Get("/users", h.Users.List)
		r.With(auth.RequirePermission(deps.Resolver, models.PermUsersRead)).
			Get("/users/{id}", h.Users.Get)
		r.With(auth.RequirePermission(deps.Resolver, models.PermUsersWrite)).
			Post("/users", h.Users.Create)
		r.With(auth.RequirePermission(deps.Resolver, models.PermUsersWrite)).
			Put("/users/{id}", h.Users.Update)
		r.With(auth.RequirePermission(deps.Resolver, models.PermUsersWrite)).
			Put("/users/{id}/role", h.Users.AssignRole)
		r.With(auth.RequirePermission(deps.Resolver, models.PermUsersDelete)).
			Delete("/users/{id}", h.Users.Delete)

		// Customer token issuance rides on users.write
		r.With(auth.RequirePermission(deps.Resolver, models.PermUsersWrite)).
			Post("/auth/customer-tokens", h.Auth.IssueCustomerToken)

		// Role management
		r.With(auth.RequirePermission(deps.Resolver, models.PermRolesRead)).
			Get("/roles", h.Roles.List)
		r.With(auth.RequirePermission(deps.Resolver, models.PermRolesRead)).
			Get("/roles/{id}", h.Roles.Get)
		r.With(auth.RequirePermission(deps.Resolver, models.PermRolesRead)).
			Get("/roles/permissions", h.Roles.Permissions)
		r.With(auth.RequirePermission(deps.Resolver, models.PermRolesWrite)).
			Post("/roles", h.Roles.Create)
		r.With(auth.RequirePermission(deps.Resolver, models.PermRolesWrite)).
			Put("/roles/{id}", h.Roles.Update)
		r.With(auth.RequirePermission(deps.Resolver, models.PermRolesWrite)).
			Delete("/roles/{id}", h.Roles.Delete)

		// Audit trail, read-only
		r.With(auth.RequirePermission(deps.Resolver, models.PermAuditRead)).
			Get("/audit", h.Audit.List)
		r.With(auth.RequirePermission(deps.Resolver, models.PermAuditRead)).
			Get("/audit/count", h.Audit.Count)

		// Security settings
		r.With(auth.RequirePermission(deps.Resolver, models.PermSettingsRead)).
			Get("/settings/security", h.Settings.Get)
		r.With(auth.RequirePermission(deps.Resolver, models.PermSettingsWrite)).
			Put("/settings/security/allowlist", h.Settings.UpdateAllowList)
	})

	// Customer-facing surface, authenticated by compact bearer tokens
	router.Group(func(r chi.Router) {
		r.Use(auth.CustomerAuth(deps.Issuer))
		r.Use(middleware.RateLimit(deps.Limiter, ratelimit.TypeAPI))

		r.Get("/customer/me", func(w http.ResponseWriter, r *http.Request) {
			principal := auth.PrincipalFromContext(r.Context())
			if principal == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}
			pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
				"subject": principal.ID,
				"email":   principal.Email,
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "route not found")
	})
}
