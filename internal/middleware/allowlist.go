package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bastionhq/bastion/internal/ipfilter"
	"github.com/bastionhq/bastion/internal/models"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// SettingsSource provides the current allow-list configuration
type SettingsSource interface {
	Get(ctx context.Context) (*models.SecuritySettings, error)
}

// AllowListGate rejects requests from IPs outside the configured allow-list.
// A disabled gate or an empty rule list restricts nothing. A settings lookup
// failure fails open: losing the settings store must not lock everyone out.
func AllowListGate(settings SettingsSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current, err := settings.Get(r.Context())
			if err != nil {
				logger.Error("allow list lookup failed", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			if !current.AllowListEnabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := pkghttp.ClientIP(r)
			if !ipfilter.IsAllowed(ip, current.AllowListRules) {
				logger.Warn("request rejected by allow list", slog.String("ip", ip))
				pkghttp.WriteForbidden(w, "access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
