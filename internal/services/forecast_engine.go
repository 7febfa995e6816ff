package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/llm"
)

// FallbackAdvice is returned for at-risk budgets when no advice can be
// generated.
const FallbackAdvice = "You are spending too fast."

// defaultAdviceFreshness is how long a cached budget alert stays reusable
// when no TTL is configured.
const defaultAdviceFreshness = 24 * time.Hour

// riskFactor: a budget is at risk when the month-end projection overshoots
// the cap by more than 5%.
const riskFactor = 1.05

// ForecastEngine projects month-end spend per budget and attaches one
// sentence of advice to budgets heading over their cap.
type ForecastEngine struct {
	store     ForecastStore
	completer Completer
	freshness time.Duration
}

// NewForecastEngine builds an engine whose cached advice stays reusable for
// adviceTTL; zero or negative means the 24h default.
func NewForecastEngine(store ForecastStore, completer Completer, adviceTTL time.Duration) *ForecastEngine {
	if adviceTTL <= 0 {
		adviceTTL = defaultAdviceFreshness
	}
	return &ForecastEngine{
		store:     store,
		completer: completer,
		freshness: adviceTTL,
	}
}

// Forecast returns one entry per budget. Spend covers the calendar month
// containing now; the projection extrapolates the daily average over the
// whole month. Advice generation never fails the call.
func (e *ForecastEngine) Forecast(ctx context.Context, ownerID int64, now time.Time) ([]core.BudgetForecast, error) {
	budgets, err := e.store.ListBudgets(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	monthStart, daysInMonth := core.MonthSpan(now)
	dayOfMonth := now.Day()

	out := make([]core.BudgetForecast, 0, len(budgets))
	for _, b := range budgets {
		spent, err := e.store.SumExpenses(ctx, ownerID, b.CategoryID, monthStart, core.TypeExpense)
		if err != nil {
			return nil, fmt.Errorf("sum category spend: %w", err)
		}

		categoryName := ""
		if cat, err := e.store.GetCategory(ctx, ownerID, b.CategoryID); err == nil {
			categoryName = cat.Name
		}

		dailyAvg := float64(spent.Cents) / float64(dayOfMonth)
		projected := core.Money{Cents: int64(dailyAvg * float64(daysInMonth))}
		overPace := float64(projected.Cents) > float64(b.Amount.Cents)*riskFactor

		f := core.BudgetForecast{
			CategoryID:    b.CategoryID,
			CategoryName:  categoryName,
			BudgetAmount:  b.Amount,
			Spent:         spent,
			Projected:     projected,
			DaysRemaining: daysInMonth - dayOfMonth,
			Status:        core.ForecastOK,
		}

		switch {
		case spent.Cents >= b.Amount.Cents:
			f.Status = core.ForecastExceeded
		case overPace:
			f.Status = core.ForecastAtRisk
		}

		if overPace {
			f.Advice = e.advice(ctx, ownerID, b, categoryName, spent, projected, now)
		}

		out = append(out, f)
	}

	return out, nil
}

// advice returns a cached alert when one is fresh, otherwise asks the
// completion collaborator. Only generated sentences enter the cache; the
// canned fallback is never persisted, so a transient outage does not pin it
// for a whole freshness window.
func (e *ForecastEngine) advice(ctx context.Context, ownerID int64, b core.Budget, categoryName string, spent, projected core.Money, now time.Time) string {
	key := strconv.FormatInt(b.CategoryID, 10)
	cutoff := now.Add(-e.freshness)

	if cached, err := e.store.GetFreshAdvice(ctx, ownerID, core.AdviceKindBudgetAlert, key, cutoff); err == nil {
		return cached
	}

	text, ok := e.generateAdvice(ctx, b, categoryName, spent, projected)
	if !ok {
		return FallbackAdvice
	}

	entry := core.AdviceEntry{
		OwnerID:   ownerID,
		Kind:      core.AdviceKindBudgetAlert,
		Key:       key,
		Value:     text,
		CreatedAt: now,
	}
	if _, err := e.store.InsertAdvice(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "Failed to cache budget advice",
			"owner_id", ownerID,
			"category_id", b.CategoryID,
			"error", err)
	}

	return text
}

func (e *ForecastEngine) generateAdvice(ctx context.Context, b core.Budget, categoryName string, spent, projected core.Money) (string, bool) {
	if e.completer == nil {
		return "", false
	}

	name := categoryName
	if name == "" {
		name = "this category"
	}
	prompt := fmt.Sprintf(
		"A user budgeted %s for %q this month, has already spent %s, and is projected to reach %s by month end. "+
			"Give one short, concrete sentence of advice to slow their spending in this category. Reply with the sentence only.",
		b.Amount, name, spent, projected)

	text, err := e.completer.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 100})
	if err != nil {
		slog.ErrorContext(ctx, "Budget advice completion failed",
			"category_id", b.CategoryID,
			"error", err)
		return "", false
	}
	return text, true
}
