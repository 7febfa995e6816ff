package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

const (
	TypeExpense EntryType = "expense"
	TypeIncome  EntryType = "income"
)

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeFailed    ChallengeStatus = "failed"
)

// AdviceKindBudgetAlert tags advice-cache entries produced by the budget
// forecast engine. The cache key is the category id.
const AdviceKindBudgetAlert = "budget_alert"

type (
	// Frequency is how often a recurring template materializes.
	Frequency string

	// EntryType distinguishes ledger entries: money out or money in.
	EntryType string

	// ChallengeStatus tracks a spend-less challenge through its lifecycle.
	ChallengeStatus string

	Category struct {
		ID        int64
		OwnerID   int64
		Name      string
		Color     string
		CreatedAt time.Time
	}

	// Expense is a single ledger entry, either an expense or an income.
	Expense struct {
		ID         int64
		OwnerID    int64
		Title      string
		Amount     Money
		CategoryID int64 // 0 = uncategorized
		Type       EntryType
		Date       time.Time
		CreatedAt  time.Time
	}

	// Budget caps monthly spend for one category. Spent-to-date is derived
	// from the ledger, never stored.
	Budget struct {
		ID         int64
		OwnerID    int64
		CategoryID int64
		Amount     Money
		Period     string
		CreatedAt  time.Time
	}

	// RecurringTemplate defines a repeating obligation. The roller copies it
	// into a concrete Expense each time next_due_date passes.
	RecurringTemplate struct {
		ID              int64
		OwnerID         int64
		Title           string
		Amount          Money
		CategoryID      int64
		Frequency       Frequency
		NextDueDate     time.Time
		IsActive        bool
		LastGeneratedAt time.Time // zero until first materialization
		CreatedAt       time.Time
	}

	// Challenge is a time-boxed spend-less goal over one category.
	Challenge struct {
		ID            int64
		OwnerID       int64
		Title         string
		Description   string
		CategoryID    int64 // 0 = not tied to a category
		TargetAmount  Money
		CurrentAmount Money
		StartDate     time.Time
		EndDate       time.Time
		Status        ChallengeStatus
		CreatedAt     time.Time
	}

	// AdviceEntry is a typed, time-boxed memo of generated advice. Entries
	// older than the freshness window are ignored, never read.
	AdviceEntry struct {
		ID        int64
		OwnerID   int64
		Kind      string
		Key       string
		Value     string
		CreatedAt time.Time
	}

	// Suggestion is free-form persisted advice text shown in full to the user.
	Suggestion struct {
		ID        int64
		OwnerID   int64
		Content   string
		CreatedAt time.Time
	}

	// MonthlyReport is the stored result of a monthly audit.
	MonthlyReport struct {
		ID          int64
		OwnerID     int64
		Month       string // YYYY-MM
		TotalSpent  Money
		TotalIncome Money
		SavingsRate float64 // percent
		Analysis    string  // JSON from the completion collaborator
		CreatedAt   time.Time
	}

	// BudgetForecast is the per-budget projection emitted by the forecast
	// engine. Spent and Projected cover the current calendar month.
	BudgetForecast struct {
		CategoryID    int64  `json:"category_id"`
		CategoryName  string `json:"category"`
		BudgetAmount  Money  `json:"budget"`
		Spent         Money  `json:"spent"`
		Projected     Money  `json:"projected"`
		DaysRemaining int    `json:"days_remaining"`
		Status        string `json:"status"` // ok, at_risk, exceeded
		Advice        string `json:"advice,omitempty"`
	}
)

const (
	ForecastOK       = "ok"
	ForecastAtRisk   = "at_risk"
	ForecastExceeded = "exceeded"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyTitle      = errors.New("empty title")
	ErrInvalidType     = errors.New("invalid entry type")
	ErrInvalidFreq     = errors.New("invalid frequency")
	ErrZeroDueDate     = errors.New("next due date cannot be zero")
	ErrEmptyName       = errors.New("empty category name")
	ErrInvalidPeriod   = errors.New("invalid budget period")
	ErrInvalidDateSpan = errors.New("end date must be after start date")
)

// Terminal reports whether the status can never change again.
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeCompleted || s == ChallengeFailed
}

func (t EntryType) Valid() bool {
	return t == TypeExpense || t == TypeIncome
}

func (f Frequency) Valid() bool {
	return f == Weekly || f == Monthly
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	return nil
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Type.Valid() {
		return ErrInvalidType
	}
	if e.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (b Budget) Validate() error {
	if b.CategoryID <= 0 {
		return errors.New("budget requires a category")
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if b.Period != "" && b.Period != "monthly" {
		return ErrInvalidPeriod
	}
	return nil
}

func (t RecurringTemplate) Validate() error {
	if len(strings.TrimSpace(t.Title)) == 0 {
		return ErrEmptyTitle
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Frequency.Valid() {
		return ErrInvalidFreq
	}
	if t.NextDueDate.IsZero() {
		return ErrZeroDueDate
	}
	return nil
}

func (c Challenge) Validate() error {
	if len(strings.TrimSpace(c.Title)) == 0 {
		return ErrEmptyTitle
	}
	if c.TargetAmount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if !c.EndDate.After(c.StartDate) {
		return ErrInvalidDateSpan
	}
	switch c.Status {
	case ChallengePending, ChallengeActive, ChallengeCompleted, ChallengeFailed:
	default:
		return errors.New("invalid challenge status")
	}
	return nil
}

// NextDue advances a due date by one cycle of the frequency. Weekly adds
// exactly 7 days; monthly moves to the same day of the next calendar month,
// clamped to the last day when the next month is shorter (Jan 31 -> Feb 28).
func (f Frequency) NextDue(from time.Time) time.Time {
	switch f {
	case Weekly:
		return from.AddDate(0, 0, 7)
	case Monthly:
		y, m, d := from.Date()
		next := time.Date(y, m+1, 1, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
		if last := daysIn(next.Year(), next.Month()); d > last {
			d = last
		}
		return time.Date(next.Year(), next.Month(), d, from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
	default:
		return from
	}
}

// MonthSpan returns the first instant of the month containing t and the
// number of days in that month.
func MonthSpan(t time.Time) (start time.Time, days int) {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location()), daysIn(y, m)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
