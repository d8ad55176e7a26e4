package middleware

import (
	"net/http"

	"github.com/miroslavpejic85/mirotalk-admin/internal/logging"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
)

// DashboardEnabled answers 503 for every request while the dashboard is
// switched off.
func DashboardEnabled(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				logging.WithComponent("dashboard-guard").Warn().
					Str("path", logutil.SanitizeForLog(r.URL.Path)).
					Msg("admin dashboard is disabled")
				writeError(w, http.StatusServiceUnavailable, "Admin dashboard is disabled")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
