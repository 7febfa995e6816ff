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

type expenseRequest struct {
	Title      string  `json:"title"`
	Amount     float64 `json:"amount"`
	CategoryID int64   `json:"category_id"`
	Type       string  `json:"type"`
	Date       string  `json:"date"`
}

func (req expenseRequest) toDomain(ownerID int64, now time.Time) (core.Expense, error) {
	typ := core.EntryType(req.Type)
	if req.Type == "" {
		typ = core.TypeExpense
	}
	date := now
	if req.Date != "" {
		parsed, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return core.Expense{}, errors.New("invalid date, expected YYYY-MM-DD")
		}
		date = parsed
	}
	e := core.Expense{
		OwnerID:    ownerID,
		Title:      strings.TrimSpace(req.Title),
		Amount:     core.FromUnits(req.Amount),
		CategoryID: req.CategoryID,
		Type:       typ,
		Date:       date,
	}
	return e, e.Validate()
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := req.toDomain(ownerID, time.Now())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.expenses.Create(r.Context(), e)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Expense creation failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	e.ID = id

	s.invalidateForecast(ownerID)
	writeJSON(w, http.StatusCreated, toExpenseJSON(e))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)

	// Lazy rollover: materialize due recurring templates before listing so
	// the response reflects every obligation up to now.
	if r.URL.Query().Get("process_recurring") == "1" {
		if n, err := s.roller.ProcessDue(r.Context(), ownerID, time.Now()); err != nil {
			s.logger.ErrorContext(r.Context(), "Recurring rollover failed", log.FieldError, err)
		} else if n > 0 {
			s.invalidateForecast(ownerID)
		}
	}

	filter := storage.ExpenseFilter{
		CategoryID: queryInt64(r, "category_id"),
		Search:     strings.TrimSpace(r.URL.Query().Get("q")),
		StartDate:  queryDate(r, "from"),
		EndDate:    queryDate(r, "to"),
		Type:       core.EntryType(r.URL.Query().Get("type")),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	}
	if v := r.URL.Query().Get("min"); v != "" {
		if cents, err := core.ParseDecimalToCents(v); err == nil {
			filter.MinCents = cents
		}
	}
	if v := r.URL.Query().Get("max"); v != "" {
		if cents, err := core.ParseDecimalToCents(v); err == nil {
			filter.MaxCents = cents
		}
	}

	list, err := s.expenses.List(r.Context(), ownerID, filter)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Expense listing failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]expenseJSON, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := s.expenses.Get(r.Context(), ownerFrom(r), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "expense not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Expense lookup failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toExpenseJSON(*e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := req.toDomain(ownerID, time.Now())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	e.ID = id

	if err := s.expenses.Update(r.Context(), e); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "expense not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Expense update failed", log.FieldError, err, log.FieldExpenseID, id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.invalidateForecast(ownerID)
	writeJSON(w, http.StatusOK, toExpenseJSON(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.expenses.Delete(r.Context(), ownerID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "expense not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Expense deletion failed", log.FieldError, err, log.FieldExpenseID, id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.invalidateForecast(ownerID)
	w.WriteHeader(http.StatusNoContent)
}
