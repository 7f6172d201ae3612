package server

import (
	"net/http"
)

// handleSearch handles GET /api/search?q=, a provider symbol lookup.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		WriteError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	matches, err := s.app.Watchlist.Search(r.Context(), query)
	if err != nil {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"matches": matches,
		"count":   len(matches),
	})
}
