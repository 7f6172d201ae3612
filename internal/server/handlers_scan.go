package server

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/jmaxwell/limitwatch/internal/interfaces"
	"github.com/jmaxwell/limitwatch/internal/models"
)

// ScanRequest is the body of the POST /scan trigger.
type ScanRequest struct {
	Scanner string `json:"scanner"`
	Secret  string `json:"secret"`
}

// handleScan handles the scan trigger and progress endpoints.
//
//	POST /scan {scanner, secret} — runs a batch cycle under shared-secret auth
//	GET  /scan?scanner=          — progress snapshot for polling UIs
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleScanProgress(w, r)
	case http.MethodPost:
		s.handleScanTrigger(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleScanProgress(w http.ResponseWriter, r *http.Request) {
	progress := s.app.Scanner.Progress()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scanner": r.URL.Query().Get("scanner"),
		"running": progress.Running,
		"current": progress.Current,
		"total":   progress.Total,
		"ticker":  progress.Ticker,
	})
}

func (s *Server) handleScanTrigger(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	configured := s.app.Config.Scan.Secret
	if configured == "" {
		WriteError(w, http.StatusServiceUnavailable, "Scan trigger is not configured")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(configured)) != 1 {
		WriteError(w, http.StatusUnauthorized, "Invalid scan secret")
		return
	}

	s.logger.Info().Str("scanner", req.Scanner).Msg("Scan triggered via HTTP")

	result, err := s.app.Scanner.RunBatch(r.Context(), models.TriggerManual)
	if err != nil {
		if errors.Is(err, interfaces.ErrCycleInFlight) {
			WriteErrorWithCode(w, http.StatusConflict, "A scan cycle is already running", "cycle_in_flight")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Scan cycle failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scanner":     req.Scanner,
		"trigger":     result.Trigger,
		"started":     result.Started,
		"duration_ms": result.DurationMS,
		"requested":   result.Requested,
		"succeeded":   result.Succeeded,
		"failed":      result.Failed,
		"meta":        result.Meta,
	})
}
