package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/llm"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// adviceUnavailableMessage is served when advice generation fails outright.
// Completion trouble never turns into a 5xx for the insight endpoints.
const adviceUnavailableMessage = "Advice is temporarily unavailable. Try again later."

func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	advice, err := s.advisor.GenerateAdvice(r.Context(), ownerFrom(r), time.Now())
	if err != nil {
		s.logger.WarnContext(r.Context(), "Advice generation degraded", log.FieldError, err)
		writeJSON(w, http.StatusOK, map[string]string{"advice": adviceUnavailableMessage})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"advice": advice})
}

type parseExpenseRequest struct {
	Text string `json:"text"`
}

// handleParseExpense turns free-form text like "coffee 3.50 yesterday" into
// a structured expense proposal. Nothing is persisted; the client reviews
// and submits it through POST /api/expenses.
func (s *Server) handleParseExpense(w http.ResponseWriter, r *http.Request) {
	var req parseExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusUnprocessableEntity, "text is required")
		return
	}

	e, err := s.advisor.ParseExpense(r.Context(), ownerFrom(r), req.Text, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrNoCredential):
			writeError(w, http.StatusServiceUnavailable, services.NoCredentialMessage)
		default:
			s.logger.WarnContext(r.Context(), "Expense parsing failed", log.FieldError, err)
			writeError(w, http.StatusUnprocessableEntity, "could not parse an expense from the text")
		}
		return
	}
	writeJSON(w, http.StatusOK, toExpenseJSON(e))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)
	cacheKey := strconv.FormatInt(ownerID, 10)

	if cached, ok := s.forecastCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	forecasts, err := s.forecasts.Forecast(r.Context(), ownerID, time.Now())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Forecast failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.forecastCache.Set(cacheKey, forecasts)
	writeJSON(w, http.StatusOK, forecasts)
}

type budgetSuggestionJSON struct {
	CategoryID   int64   `json:"category_id"`
	CategoryName string  `json:"category"`
	MonthlyAvg   float64 `json:"monthly_avg"`
	Suggested    float64 `json:"suggested"`
}

func (s *Server) handleBudgetSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.advisor.SuggestBudgets(r.Context(), ownerFrom(r), time.Now())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Budget suggestion failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]budgetSuggestionJSON, 0, len(suggestions))
	for _, sg := range suggestions {
		out = append(out, budgetSuggestionJSON{
			CategoryID:   sg.CategoryID,
			CategoryName: sg.CategoryName,
			MonthlyAvg:   sg.MonthlyAvg.Units(),
			Suggested:    sg.Suggested.Units(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAutoCategorize(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFrom(r)
	updated, err := s.advisor.AutoCategorize(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, llm.ErrNoCredential) {
			writeError(w, http.StatusServiceUnavailable, services.NoCredentialMessage)
			return
		}
		s.logger.ErrorContext(r.Context(), "Auto-categorization failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if updated > 0 {
		s.invalidateForecast(ownerID)
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleDetectRecurring(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.advisor.DetectRecurring(r.Context(), ownerFrom(r), time.Now())
	if err != nil {
		if errors.Is(err, llm.ErrNoCredential) {
			writeError(w, http.StatusServiceUnavailable, services.NoCredentialMessage)
			return
		}
		s.logger.ErrorContext(r.Context(), "Recurring detection failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if candidates == nil {
		candidates = []services.RecurringCandidate{}
	}
	writeJSON(w, http.StatusOK, candidates)
}

type queryRequest struct {
	Question string `json:"question"`
}

// handleQuery answers a free-form question about the ledger. Translation
// trouble degrades to a canned answer rather than a 5xx.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusUnprocessableEntity, "question is required")
		return
	}

	answer, err := s.advisor.AnswerQuery(r.Context(), ownerFrom(r), req.Question, time.Now())
	if err != nil {
		if errors.Is(err, llm.ErrNoCredential) {
			writeError(w, http.StatusServiceUnavailable, services.NoCredentialMessage)
			return
		}
		s.logger.WarnContext(r.Context(), "Ledger query degraded", log.FieldError, err)
		writeJSON(w, http.StatusOK, map[string]string{"answer": services.QueryFallbackAnswer})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.advisor.MonthlyAudit(r.Context(), ownerFrom(r), time.Now())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Monthly audit failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month":        report.Month,
		"total_spent":  report.TotalSpent.Units(),
		"total_income": report.TotalIncome.Units(),
		"savings_rate": report.SavingsRate,
		"analysis":     report.Analysis,
	})
}
