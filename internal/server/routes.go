package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/jmaxwell/limitwatch/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Scan trigger + progress polling
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/api/scan", s.handleScan)

	// Instruments
	mux.HandleFunc("/api/instruments/order", s.handleInstrumentOrder)
	mux.HandleFunc("/api/instruments/", s.routeInstruments)
	mux.HandleFunc("/api/instruments", s.handleInstrumentsRoot)

	// Providers
	mux.HandleFunc("/api/providers/usage", s.handleProviderUsage)

	// Scan log and notifications
	mux.HandleFunc("/api/scanlog", s.handleScanLog)
	mux.HandleFunc("/api/notifications", s.handleNotifications)

	// Symbol search
	mux.HandleFunc("/api/search", s.handleSearch)
}

// routeInstruments dispatches /api/instruments/{id}/* to the appropriate handler.
func (s *Server) routeInstruments(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/instruments/")
	if path == "" {
		s.handleInstrumentsRoot(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	switch subpath {
	case "":
		s.handleInstrument(w, r, id)
	case "refresh":
		s.handleInstrumentRefresh(w, r, id)
	case "archive":
		s.handleInstrumentArchive(w, r, id)
	case "chart":
		s.handleInstrumentChart(w, r, id)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"commit":  common.GitCommit,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	cfg := s.app.Config
	providers := map[string]interface{}{}
	for _, name := range cfg.EnabledProviders() {
		pc := cfg.Providers.ByName(name)
		providers[name] = map[string]interface{}{
			"api_key":    maskSecret(pc.APIKey),
			"per_minute": pc.PerMinute,
			"per_day":    pc.PerDay,
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":       cfg.Environment,
		"data_path":         cfg.Storage.Path,
		"logging_level":     cfg.Logging.Level,
		"provider_priority": cfg.Providers.Priority,
		"providers":         providers,
		"auto_interval":     cfg.Scan.GetAutoInterval().String(),
		"batch_interval":    cfg.Scan.GetBatchInterval().String(),
		"scan_configured":   cfg.Scan.Secret != "",
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
