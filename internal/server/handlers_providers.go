package server

import (
	"net/http"
)

// handleProviderUsage handles GET /api/providers/usage, exposing the quota
// accountant's view of every enabled provider.
func (s *Server) handleProviderUsage(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	usage := map[string]interface{}{}
	for _, name := range s.app.Config.EnabledProviders() {
		usage[name] = s.app.RateLimiter.UsageStats(r.Context(), name)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"priority": s.app.Config.EnabledProviders(),
		"usage":    usage,
	})
}
