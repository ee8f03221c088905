package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iotcoss/powermirror/internal/backend"
	"github.com/iotcoss/powermirror/internal/device"
	"github.com/iotcoss/powermirror/internal/eventlog"
	"github.com/iotcoss/powermirror/internal/monitor"
)

// healthResponse reports the mirror's own health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Devices int    `json:"devices"`
	Stream  string `json:"stream"`
}

// statusResponse is the full synchronization status view.
type statusResponse struct {
	Stream     string         `json:"stream"`
	SessionID  string         `json:"session_id,omitempty"`
	Backend    monitor.Status `json:"backend"`
	SyncedTime time.Time      `json:"synced_time"`
}

// positionRequest is the body for moving an outlet marker.
type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// powerRequest is the body for a relay control request.
type powerRequest struct {
	State string `json:"state"`
}

// handleHealth reports the mirror's own liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Devices: s.registry.Count(),
	}
	if s.stream != nil {
		resp.Stream = s.stream.State().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus reports stream and backend status for the dashboard.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{SyncedTime: time.Now()}
	if s.stream != nil {
		resp.Stream = s.stream.State().String()
		resp.SessionID = s.stream.SessionID()
	}
	if s.monitor != nil {
		resp.Backend = s.monitor.Status()
		resp.SyncedTime = s.monitor.SyncedNow()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListDevices returns all mirrored devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Devices())
}

// handleGetDevice returns one device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	d, err := s.registry.DeviceByID(id)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleListPositions returns all outlet positions.
func (s *Server) handleListPositions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Positions())
}

// handleSetPosition moves an outlet marker on the floor plan.
// Coordinates are clamped to the [0,100] plan space.
func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if !s.registry.SetPosition(id, req.X, req.Y) {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, s.registry.Positions())
}

// handleControlPower proxies a relay control request to the backend and
// records the optimistic desired state. The mirrored IsActive flag is not
// touched; the authoritative result arrives on the stream.
func (s *Server) handleControlPower(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeBadGateway(w, "no backend configured")
		return
	}

	mac := chi.URLParam(r, "mac")
	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.State != device.RelayOn && req.State != device.RelayOff {
		writeBadRequest(w, "state must be \"on\" or \"off\"")
		return
	}
	if _, err := s.registry.DeviceByMAC(mac); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	if err := s.backend.ControlPower(r.Context(), mac, req.State); err != nil {
		// A control failure is a user action that did not take effect;
		// it is always surfaced, never swallowed.
		s.logger.Warn("power control failed", "mac", mac, "error", err)
		s.journal.Append(eventlog.TypeError, eventlog.LevelError, "api",
			"power control request failed", "")
		if errors.Is(err, backend.ErrUnauthorized) {
			writeBadGateway(w, "backend rejected credentials")
			return
		}
		writeBadGateway(w, "backend control request failed")
		return
	}

	s.registry.SetDesiredState(mac, req.State)
	d, _ := s.registry.DeviceByMAC(mac)
	writeJSON(w, http.StatusOK, d)
}

// handleSummary returns the derived power summary.
func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Summary())
}

// handleListLogs returns journal entries, optionally filtered by type and
// a case-insensitive search term.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	entryType := r.URL.Query().Get("type")
	search := r.URL.Query().Get("search")
	writeJSON(w, http.StatusOK, s.journal.Filter(entryType, search))
}

// handleClearLogs empties the local journal and asks the backend to clear
// its mirror. The remote delete is best effort: its failure is swallowed
// because the local clear is what the user asked for.
func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	s.journal.Clear()

	if s.backend != nil {
		if err := s.backend.ClearSystemLogs(r.Context()); err != nil {
			s.logger.Debug("remote log clear failed", "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleLogHistory proxies paginated server-side log history.
func (s *Server) handleLogHistory(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeBadGateway(w, "no backend configured")
		return
	}

	q := backend.LogQuery{
		Type:   r.URL.Query().Get("type"),
		Search: r.URL.Query().Get("search"),
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		q.Page = page
	}
	if size, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil {
		q.Size = size
	}

	result, err := s.backend.SystemLogs(r.Context(), q)
	if err != nil {
		writeBadGateway(w, "backend history request failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDailyPower returns the daily energy series for one device MAC,
// or the total series when no MAC is given.
func (s *Server) handleDailyPower(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeBadGateway(w, "no backend configured")
		return
	}

	points, err := s.monitor.DailySeries(r.Context(), r.URL.Query().Get("mac"))
	if err != nil {
		writeBadGateway(w, "backend series request failed")
		return
	}
	if points == nil {
		points = []device.DailyPowerPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}
