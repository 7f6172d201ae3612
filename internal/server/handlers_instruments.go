package server

import (
	"errors"
	"net/http"

	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
	"github.com/jmaxwell/limitwatch/internal/services/watchlist"
)

// handleInstrumentsRoot handles GET (list) and POST (add) on /api/instruments.
func (s *Server) handleInstrumentsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		instruments, err := s.app.Watchlist.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"instruments": instruments,
			"count":       len(instruments),
		})
	case http.MethodPost:
		var inst models.TrackedInstrument
		if !DecodeJSON(w, r, &inst) {
			return
		}
		if err := s.app.Watchlist.Add(r.Context(), &inst); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusCreated, &inst)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleInstrument handles GET, PUT and DELETE on /api/instruments/{id}.
func (s *Server) handleInstrument(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		inst, err := s.app.Watchlist.Get(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusNotFound, "Instrument not found")
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	case http.MethodPut:
		var inst models.TrackedInstrument
		if !DecodeJSON(w, r, &inst) {
			return
		}
		inst.ID = id
		if err := s.app.Watchlist.Update(r.Context(), &inst); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := s.app.Watchlist.Get(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := s.app.Watchlist.Delete(r.Context(), id); err != nil {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleInstrumentRefresh handles POST /api/instruments/{id}/refresh.
// An optional ?provider= query forces a single provider with no fallback.
func (s *Server) handleInstrumentRefresh(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	forceProvider := r.URL.Query().Get("provider")
	result, err := s.app.Scanner.RunSingle(r.Context(), id, forceProvider, models.TriggerSingle)
	if err != nil {
		if errors.Is(err, interfaces.ErrCycleInFlight) {
			WriteErrorWithCode(w, http.StatusConflict, "A scan cycle is already running", "cycle_in_flight")
			return
		}
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	inst, err := s.app.Watchlist.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"instrument": inst,
		"cycle":      result,
	})
}

// handleInstrumentArchive handles POST /api/instruments/{id}/archive.
func (s *Server) handleInstrumentArchive(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.app.Watchlist.Archive(r.Context(), id); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

// handleInstrumentChart handles GET /api/instruments/{id}/chart, returning
// a PNG of the daily close history with the buy limit overlaid.
func (s *Server) handleInstrumentChart(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	inst, err := s.app.Watchlist.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Instrument not found")
		return
	}

	png, err := watchlist.RenderHistoryChart(inst)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleInstrumentOrder handles GET and PUT on /api/instruments/order, the
// persisted manual scan order.
func (s *Server) handleInstrumentOrder(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		order, err := s.app.Watchlist.ManualOrder(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"order": order})
	case http.MethodPut:
		var body struct {
			Order map[string]int `json:"order"`
		}
		if !DecodeJSON(w, r, &body) {
			return
		}
		if err := s.app.Watchlist.SetManualOrder(r.Context(), body.Order); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"order": body.Order})
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut)
	}
}
