package server

import (
	"net/http"
	"strconv"
)

// limitParam parses an optional ?limit= query, clamped to [1, max].
func limitParam(r *http.Request, fallback, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}

// handleScanLog handles GET /api/scanlog, newest first.
func (s *Server) handleScanLog(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := limitParam(r, 50, 500)
	entries, err := s.app.Storage.ScanLog().List(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.app.Storage.ScanLog().Count(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}

// handleNotifications handles GET /api/notifications, newest first.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := limitParam(r, 50, 500)
	notifications, err := s.app.Storage.Notifications().List(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}
