package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cat := core.Category{
		OwnerID: ownerID,
		Name:    strings.TrimSpace(req.Name),
		Color:   strings.TrimSpace(req.Color),
	}
	if err := cat.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.store.CreateCategory(r.Context(), cat)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			writeError(w, http.StatusConflict, "category already exists")
			return
		}
		s.logger.ErrorContext(r.Context(), "Category creation failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	cat.ID = id
	writeJSON(w, http.StatusCreated, toCategoryJSON(cat))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context(), ownerFrom(r))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Category listing failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteCategory(r.Context(), ownerFrom(r), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Category deletion failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.invalidateForecast(ownerFrom(r))
	w.WriteHeader(http.StatusNoContent)
}
