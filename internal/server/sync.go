package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/server/store"
)

const (
	actionConfig = "config"
	actionSync   = "sync"
	actionLog    = "log"

	syncLogLimit = 20
)

// handleBokunSync serves /api/bokun_sync, dispatching on ?action=.
func (s *Server) handleBokunSync(w http.ResponseWriter, r *http.Request) {
	action := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("action")))
	switch {
	case action == actionConfig && r.Method == http.MethodGet:
		s.handleSyncConfig(w, r)
	case action == actionConfig && r.Method == http.MethodPut:
		s.requireAdmin(http.HandlerFunc(s.handleSetSyncConfig)).ServeHTTP(w, r)
	case action == actionSync && (r.Method == http.MethodGet || r.Method == http.MethodPost):
		s.requireAdmin(http.HandlerFunc(s.handleRunSync)).ServeHTTP(w, r)
	case action == actionLog && r.Method == http.MethodGet:
		s.requireAdmin(http.HandlerFunc(s.handleSyncLog)).ServeHTTP(w, r)
	case action == actionConfig, action == actionSync, action == actionLog:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		writeError(w, http.StatusBadRequest, "Unknown action")
	}
}

func (s *Server) handleSyncConfig(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.store.SyncEnabled(r.Context())
	if err != nil {
		s.storeError(w, r, err, "Setting")
		return
	}
	writeJSON(w, http.StatusOK, api.SyncEnabledResponse{SyncEnabled: enabled})
}

func (s *Server) handleSetSyncConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SyncEnabled *bool `json:"sync_enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.SyncEnabled == nil {
		writeError(w, http.StatusBadRequest, "sync_enabled is required")
		return
	}
	if err := s.store.SetSyncEnabled(r.Context(), *body.SyncEnabled); err != nil {
		s.storeError(w, r, err, "Setting")
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	s.log.Infow("bokun sync switch changed", "enabled", *body.SyncEnabled, "by", claims.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"sync_enabled": *body.SyncEnabled,
	})
}

// handleRunSync imports bookings. Scheduled syncs honor the switch; a
// manual sync always runs.
func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	syncType := store.SyncTypeAuto
	if strings.EqualFold(q.Get("type"), store.SyncTypeManual) {
		syncType = store.SyncTypeManual
	}
	trigger := strings.TrimSpace(q.Get("triggered_by"))
	if trigger == "" {
		trigger = syncType
	}
	if len(trigger) > 64 {
		trigger = trigger[:64]
	}

	if syncType == store.SyncTypeAuto {
		enabled, err := s.store.SyncEnabled(r.Context())
		if err != nil {
			s.storeError(w, r, err, "Setting")
			return
		}
		if !enabled {
			writeJSON(w, http.StatusOK, api.SyncResult{Success: false, Error: "Bokun sync is disabled"})
			return
		}
	}

	result, err := s.importer.Run(r.Context(), trigger, syncType)
	if errors.Is(err, ErrImportRunning) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": err.Error(),
			"error":   err.Error(),
		})
		return
	}
	if err != nil {
		s.log.Errorw("bokun import", "error", err)
		writeError(w, http.StatusInternalServerError, "Import failed")
		return
	}
	if result.Success && result.SyncedCount > 0 {
		s.publish(eventSynced, resourceTour, 0)
	}
	writeJSON(w, http.StatusOK, result)
}

type syncRunView struct {
	ID            int64  `json:"id"`
	Trigger       string `json:"triggered_by"`
	Type          string `json:"type"`
	Success       bool   `json:"success"`
	SyncedCount   int    `json:"synced_count"`
	TotalBookings int    `json:"total_bookings"`
	Error         string `json:"error,omitempty"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at"`
}

func (s *Server) handleSyncLog(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.SyncRuns(r.Context(), syncLogLimit)
	if err != nil {
		s.storeError(w, r, err, "Sync log")
		return
	}
	views := make([]syncRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, syncRunView{
			ID:            run.ID,
			Trigger:       run.Trigger,
			Type:          run.Type,
			Success:       run.Success,
			SyncedCount:   run.SyncedCount,
			TotalBookings: run.TotalBookings,
			Error:         run.Error,
			StartedAt:     run.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt:    run.FinishedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": views})
}
