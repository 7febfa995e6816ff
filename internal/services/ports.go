// Package services holds the business logic: recurring-expense rollover,
// budget forecasting, savings challenges, and LLM-backed insights.
package services

import (
	"context"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/storage"
)

// TemplateStore is the storage surface the recurring processor needs.
type TemplateStore interface {
	ListDueTemplates(ctx context.Context, ownerID int64, now time.Time) ([]core.RecurringTemplate, error)
	CreateExpense(ctx context.Context, e core.Expense) (int64, error)
	AdvanceTemplate(ctx context.Context, ownerID, id int64, nextDue, generatedAt time.Time) error
}

// ForecastStore is the storage surface the forecast engine needs.
type ForecastStore interface {
	ListBudgets(ctx context.Context, ownerID int64) ([]core.Budget, error)
	GetCategory(ctx context.Context, ownerID, id int64) (*core.Category, error)
	SumExpenses(ctx context.Context, ownerID, categoryID int64, since time.Time, typ core.EntryType) (core.Money, error)
	GetFreshAdvice(ctx context.Context, ownerID int64, kind, key string, cutoff time.Time) (string, error)
	InsertAdvice(ctx context.Context, e core.AdviceEntry) (int64, error)
}

// ChallengeStore is the storage surface the challenge service needs.
type ChallengeStore interface {
	CountExpensesSince(ctx context.Context, ownerID int64, since time.Time) (int, error)
	SumByCategory(ctx context.Context, ownerID int64, since time.Time) ([]storage.CategoryTotal, error)
	SumExpenses(ctx context.Context, ownerID, categoryID int64, since time.Time, typ core.EntryType) (core.Money, error)
	ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error)
	CreateChallenge(ctx context.Context, c core.Challenge) (int64, error)
	GetChallenge(ctx context.Context, ownerID, id int64) (*core.Challenge, error)
	ListChallenges(ctx context.Context, ownerID int64, status core.ChallengeStatus) ([]core.Challenge, error)
	HasPendingChallenge(ctx context.Context, ownerID, categoryID int64) (bool, error)
	HasChallengeTitled(ctx context.Context, ownerID int64, title string) (bool, error)
	UpdateChallenge(ctx context.Context, c core.Challenge) error
}

// AdvisorStore is the storage surface the advisor needs.
type AdvisorStore interface {
	ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error)
	SumByCategory(ctx context.Context, ownerID int64, since time.Time) ([]storage.CategoryTotal, error)
	SumExpensesBetween(ctx context.Context, ownerID int64, start, end time.Time, typ core.EntryType) (core.Money, error)
	ListExpenses(ctx context.Context, ownerID int64, f storage.ExpenseFilter) ([]core.Expense, error)
	ListTemplates(ctx context.Context, ownerID int64) ([]core.RecurringTemplate, error)
	ListUncategorized(ctx context.Context, ownerID int64, limit int) ([]core.Expense, error)
	SetExpenseCategory(ctx context.Context, ownerID, expenseID, categoryID int64) error
	InsertSuggestion(ctx context.Context, ownerID int64, content string) (int64, error)
	UpsertMonthlyReport(ctx context.Context, rep core.MonthlyReport) (int64, error)
}

// Completer is the completion collaborator. *llm.Client satisfies it; a nil
// implementation means no credential is configured.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	CompleteJSON(ctx context.Context, req llm.Request, v any) error
}

// EventPublisher pushes expense events onto the bus. Publish failures are
// never propagated to callers; the ledger write already succeeded.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, expenseID, ownerID int64, action string) error
}
