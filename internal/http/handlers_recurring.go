package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type templateRequest struct {
	Title       string  `json:"title"`
	Amount      float64 `json:"amount"`
	CategoryID  int64   `json:"category_id"`
	Frequency   string  `json:"frequency"`
	NextDueDate string  `json:"next_due_date"`
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)

	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	due, err := time.Parse(dateLayout, req.NextDueDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid next_due_date, expected YYYY-MM-DD")
		return
	}

	tpl := core.RecurringTemplate{
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(req.Title),
		Amount:      core.FromUnits(req.Amount),
		CategoryID:  req.CategoryID,
		Frequency:   core.Frequency(req.Frequency),
		NextDueDate: due,
		IsActive:    true,
	}
	if err := tpl.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.store.CreateTemplate(r.Context(), tpl)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template creation failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	tpl.ID = id
	writeJSON(w, http.StatusCreated, toTemplateJSON(tpl))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context(), ownerFrom(r))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template listing failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]templateJSON, 0, len(templates))
	for _, t := range templates {
		out = append(out, toTemplateJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleProcessRecurring materializes every due template for the caller and
// reports how many expenses were generated.
func (s *Server) handleProcessRecurring(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)
	n, err := s.roller.ProcessDue(r.Context(), ownerID, time.Now())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Recurring rollover failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if n > 0 {
		s.invalidateForecast(ownerID)
	}
	writeJSON(w, http.StatusOK, map[string]int{"generated": n})
}

type templatePatch struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) handlePatchTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req templatePatch
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusUnprocessableEntity, "is_active is required")
		return
	}

	if err := s.store.SetTemplateActive(r.Context(), ownerFrom(r), id, *req.IsActive); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Template update failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": *req.IsActive})
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteTemplate(r.Context(), ownerFrom(r), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "template not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Template deletion failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
