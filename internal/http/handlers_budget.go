package http

import (
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type budgetRequest struct {
	CategoryID int64   `json:"category_id"`
	Amount     float64 `json:"amount"`
	Period     string  `json:"period"`
}

// handleUpsertBudget creates or replaces the budget for a category. One
// budget per category per owner; posting again overwrites the amount.
func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)

	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b := core.Budget{
		OwnerID:    ownerID,
		CategoryID: req.CategoryID,
		Amount:     core.FromUnits(req.Amount),
		Period:     req.Period,
	}
	if err := b.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if _, err := s.store.GetCategory(r.Context(), ownerID, b.CategoryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "unknown category")
			return
		}
		s.logger.ErrorContext(r.Context(), "Category lookup failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	id, err := s.store.UpsertBudget(r.Context(), b)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Budget upsert failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	b.ID = id
	if b.Period == "" {
		b.Period = "monthly"
	}

	s.invalidateForecast(ownerID)
	writeJSON(w, http.StatusCreated, toBudgetJSON(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.store.ListBudgets(r.Context(), ownerFrom(r))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Budget listing failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]budgetJSON, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetJSON(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteBudget(r.Context(), ownerFrom(r), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "budget not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Budget deletion failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.invalidateForecast(ownerFrom(r))
	w.WriteHeader(http.StatusNoContent)
}
