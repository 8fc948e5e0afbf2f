package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/server/store"
)

// Change feed vocabulary.
const (
	eventCreated = "created"
	eventUpdated = "updated"
	eventDeleted = "deleted"
	eventSynced  = "synced"

	resourceGuide = "guide"
	resourceTour  = "tour"
)

func (s *Server) publish(eventType, resource string, id int64) {
	s.hub.Broadcast(api.ChangeEvent{Type: eventType, Resource: resource, ID: id, At: s.now().UTC()})
}

// storeError maps store failures to responses. notFound names the missing
// entity.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound+" not found")
	case errors.Is(err, store.ErrUnknownGuide):
		writeError(w, http.StatusBadRequest, "Guide not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, notFound+" already exists")
	default:
		s.log.Errorw("store failure", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"status":       "ok",
		"time":         s.now().UTC(),
		"sync_running": s.importer.Running(),
		"ws_clients":   s.hub.Count(),
	})
}

func (s *Server) handleListGuides(w http.ResponseWriter, r *http.Request) {
	page := pageQuery(r)
	guides, total, err := s.store.ListGuides(r.Context(), page)
	if err != nil {
		s.storeError(w, r, err, "Guide")
		return
	}
	if guides == nil {
		guides = []api.Guide{}
	}
	writeJSON(w, http.StatusOK, api.GuidePage{Data: guides, Pagination: page.Pagination(total)})
}

func (s *Server) handleCreateGuide(w http.ResponseWriter, r *http.Request) {
	var in api.NewGuide
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	guide, err := s.store.CreateGuide(r.Context(), in)
	if err != nil {
		s.storeError(w, r, err, "Guide")
		return
	}
	s.publish(eventCreated, resourceGuide, guide.ID)
	writeJSON(w, http.StatusCreated, guide)
}

func (s *Server) handleDeleteGuide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteGuide(r.Context(), id); err != nil {
		s.storeError(w, r, err, "Guide")
		return
	}
	s.publish(eventDeleted, resourceGuide, id)
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Guide deleted"})
}

func (s *Server) handleListTours(w http.ResponseWriter, r *http.Request) {
	page := pageQuery(r)
	tours, total, err := s.store.ListTours(r.Context(), page)
	if err != nil {
		s.storeError(w, r, err, "Tour")
		return
	}
	if tours == nil {
		tours = []api.Tour{}
	}
	writeJSON(w, http.StatusOK, api.TourPage{Data: tours, Pagination: page.Pagination(total)})
}

func (s *Server) handleCreateTour(w http.ResponseWriter, r *http.Request) {
	var in api.NewTour
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tour, err := s.store.CreateTour(r.Context(), in)
	if err != nil {
		s.storeError(w, r, err, "Tour")
		return
	}
	s.publish(eventCreated, resourceTour, tour.ID)
	writeJSON(w, http.StatusCreated, tour)
}

func (s *Server) handleUpdateTour(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch api.TourPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}
	if err := validatePatch(patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.updateTour(w, r, id, patch)
}

func validatePatch(p api.TourPatch) error {
	probe := api.NewTour{Title: "-", Date: "2000-01-01", Time: "-", GuideID: 1}
	if p.Title != nil {
		probe.Title = *p.Title
	}
	if p.Date != nil {
		probe.Date = *p.Date
	}
	if p.Time != nil {
		probe.Time = *p.Time
	}
	if p.GuideID != nil {
		probe.GuideID = *p.GuideID
	}
	return probe.Validate()
}

func (s *Server) handleSetPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Paid *bool `json:"paid"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Paid == nil {
		writeError(w, http.StatusBadRequest, "paid is required")
		return
	}
	s.updateTour(w, r, id, api.TourPatch{Paid: body.Paid})
}

func (s *Server) handleSetCancelled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Cancelled *bool `json:"cancelled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Cancelled == nil {
		writeError(w, http.StatusBadRequest, "cancelled is required")
		return
	}
	s.updateTour(w, r, id, api.TourPatch{Cancelled: body.Cancelled})
}

func (s *Server) updateTour(w http.ResponseWriter, r *http.Request, id int64, patch api.TourPatch) {
	tour, err := s.store.UpdateTour(r.Context(), id, patch)
	if err != nil {
		s.storeError(w, r, err, "Tour")
		return
	}
	s.publish(eventUpdated, resourceTour, tour.ID)
	writeJSON(w, http.StatusOK, tour)
}

func (s *Server) handleDeleteTour(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteTour(r.Context(), id); err != nil {
		s.storeError(w, r, err, "Tour")
		return
	}
	s.publish(eventDeleted, resourceTour, id)
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Tour deleted"})
}
