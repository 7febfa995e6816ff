package http

import (
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

const trendWindowDays = 30

type breakdownJSON struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type trendPointJSON struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

type dashboardJSON struct {
	TotalExpense       float64          `json:"total_expense"`
	TotalIncome        float64          `json:"total_income"`
	Balance            float64          `json:"balance"`
	CategoryBreakdown  []breakdownJSON  `json:"category_breakdown"`
	DailyTrend         []trendPointJSON `json:"daily_trend"`
	RecentTransactions []expenseJSON    `json:"recent_transactions"`
}

// handleDashboard aggregates the numbers the landing view needs in one round
// trip: all-time totals, the per-category split, the last thirty days of
// daily spend, and the five most recent entries.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := ownerFrom(r)
	now := time.Now()

	spent, err := s.store.SumExpenses(ctx, ownerID, 0, time.Time{}, core.TypeExpense)
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard totals failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	income, err := s.store.SumExpenses(ctx, ownerID, 0, time.Time{}, core.TypeIncome)
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard totals failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	categories, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard categories failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	totals, err := s.store.SumByCategory(ctx, ownerID, time.Time{})
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard breakdown failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	breakdown := make([]breakdownJSON, 0, len(totals))
	for _, t := range totals {
		name := names[t.CategoryID]
		if name == "" {
			name = "Uncategorized"
		}
		breakdown = append(breakdown, breakdownJSON{Name: name, Value: t.Total.Units()})
	}

	days, err := s.store.SumByDay(ctx, ownerID, now.AddDate(0, 0, -trendWindowDays))
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard trend failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	trend := make([]trendPointJSON, 0, len(days))
	for _, d := range days {
		trend = append(trend, trendPointJSON{Date: d.Day, Amount: d.Total.Units()})
	}

	recent, err := s.store.ListExpenses(ctx, ownerID, storage.ExpenseFilter{Limit: 5})
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard recent entries failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	recentJSON := make([]expenseJSON, 0, len(recent))
	for _, e := range recent {
		recentJSON = append(recentJSON, toExpenseJSON(e))
	}

	writeJSON(w, http.StatusOK, dashboardJSON{
		TotalExpense:       spent.Units(),
		TotalIncome:        income.Units(),
		Balance:            income.Units() - spent.Units(),
		CategoryBreakdown:  breakdown,
		DailyTrend:         trend,
		RecentTransactions: recentJSON,
	})
}
