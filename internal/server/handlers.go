package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/loader"
	"github.com/conneroisu/modloader/internal/preload"
	"github.com/conneroisu/modloader/internal/renderer"
	"github.com/conneroisu/modloader/internal/signal"
	"github.com/conneroisu/modloader/internal/types"
	"github.com/conneroisu/modloader/internal/version"
)

// handleIndex renders the module status table
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.renderer.RenderStatus(r.Context(), &buf, s.app.Snapshots()); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, buf.Bytes())
}

// handleNavigate resolves a route and renders the loaded module. A client
// that disconnects abandons its wait; the load itself carries on.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	route := "/" + r.PathValue("route")

	handle, err := s.app.Gate.Resolve(r.Context(), route)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.writeNavigationError(w, r, route, err)
		return
	}

	snapshot, _ := s.app.Loader.Snapshot(s.app.Gate.ModuleKey(route))

	var buf bytes.Buffer
	if err := s.renderer.RenderModule(r.Context(), &buf, route, handle, snapshot); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, buf.Bytes())
}

func (s *Server) writeNavigationError(w http.ResponseWriter, r *http.Request, route string, err error) {
	status := renderer.StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn(r.Context(), err, "Navigation failed", "route", route)
	}

	var buf bytes.Buffer
	if rerr := s.renderer.RenderError(r.Context(), &buf, route, err); rerr != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeHTML(w, status, buf.Bytes())
}

// handleModules lists every registered module with its load state
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"modules": s.app.Modules(),
		"routes":  s.app.Gate.Routes(),
	})
}

// handleModule describes a single module
func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	info, ok := s.app.Module(key)
	if !ok {
		writeError(w, http.StatusNotFound, errors.NewUnknownModuleError(key))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleModuleLoad starts loading a module without waiting for it, the way a
// router prefetches on hover
func (s *Server) handleModuleLoad(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	future := s.app.Loader.Request(key)

	// Unknown keys resolve immediately
	if future.Ready() {
		if _, err := future.Wait(r.Context()); errors.IsUnknownModule(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
	}

	info, _ := s.app.Module(key)
	writeJSON(w, http.StatusAccepted, info)
}

type metricsResponse struct {
	Loader           loader.MetricsSnapshot `json:"loader"`
	CacheHitRate     float64                `json:"cache_hit_rate"`
	SuccessRate      float64                `json:"success_rate"`
	EventsDropped    int64                  `json:"events_dropped"`
	WebSocketClients int                    `json:"websocket_clients"`
}

// handleMetrics reports loader counters
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := s.app.Loader.Metrics().GetSnapshot()
	writeJSON(w, http.StatusOK, metricsResponse{
		Loader:           snapshot,
		CacheHitRate:     snapshot.CacheHitRate(),
		SuccessRate:      snapshot.SuccessRate(),
		EventsDropped:    s.app.Bus.Dropped(),
		WebSocketClients: s.hub.ClientCount(),
	})
}

type preloadResponse struct {
	Strategy string        `json:"strategy"`
	Stats    preload.Stats `json:"stats"`
	Signal   signal.Signal `json:"signal"`
}

// handlePreload reports background preload progress
func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, preloadResponse{
		Strategy: s.app.Strategy.Name(),
		Stats:    s.app.Scheduler.Stats(),
		Signal:   s.app.Signals.Current(),
	})
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	failed := 0
	for _, info := range s.app.Modules() {
		if info.State == types.StateFailed {
			failed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"checks": map[string]interface{}{
			"registry":  map[string]interface{}{"modules": s.app.Registry.Count(), "sealed": s.app.Registry.Sealed()},
			"loader":    map[string]interface{}{"failed_modules": failed},
			"websocket": map[string]interface{}{"clients": s.hub.ClientCount()},
		},
	})
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errors.GetErrorCode(err),
	})
}
