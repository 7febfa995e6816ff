package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(t *testing.T, repo *SQLiteRepository) int64 {
	t.Helper()
	id, err := repo.CreateUser(context.Background(), "mario@example.com", "Mario Rossi", "hash")
	require.NoError(t, err)
	return id
}

func TestSessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)
	now := time.Now()

	require.NoError(t, repo.CreateSession(ctx, "tok-1", userID, now.Add(time.Hour)))

	got, err := repo.GetSessionUser(ctx, "tok-1", now)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	// Expired sessions resolve as missing.
	_, err = repo.GetSessionUser(ctx, "tok-1", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.DeleteSession(ctx, "tok-1"))
	_, err = repo.GetSessionUser(ctx, "tok-1", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCategoryCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	id, err := repo.CreateCategory(ctx, core.Category{OwnerID: userID, Name: "Groceries", Color: "#00ff00"})
	require.NoError(t, err)

	// Duplicate name for the same owner is rejected by the unique index.
	_, err = repo.CreateCategory(ctx, core.Category{OwnerID: userID, Name: "Groceries"})
	assert.Error(t, err)

	got, err := repo.GetCategory(ctx, userID, id)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Name)
	assert.Equal(t, "#00ff00", got.Color)

	// A different owner cannot see it.
	otherID, err := repo.CreateUser(ctx, "luigi@example.com", "Luigi", "hash")
	require.NoError(t, err)
	_, err = repo.GetCategory(ctx, otherID, id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.DeleteCategory(ctx, userID, id))
	assert.ErrorIs(t, repo.DeleteCategory(ctx, userID, id), ErrNotFound)
}

func TestExpenseFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	catID, err := repo.CreateCategory(ctx, core.Category{OwnerID: userID, Name: "Food"})
	require.NoError(t, err)

	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	seed := []core.Expense{
		{OwnerID: userID, Title: "Pizza night", Amount: core.Money{Cents: 2500}, CategoryID: catID, Type: core.TypeExpense, Date: day(1)},
		{OwnerID: userID, Title: "Groceries", Amount: core.Money{Cents: 8000}, CategoryID: catID, Type: core.TypeExpense, Date: day(10)},
		{OwnerID: userID, Title: "Salary", Amount: core.Money{Cents: 200000}, Type: core.TypeIncome, Date: day(5)},
		{OwnerID: userID, Title: "Cinema", Amount: core.Money{Cents: 1200}, Type: core.TypeExpense, Date: day(20)},
	}
	for _, e := range seed {
		_, err := repo.CreateExpense(ctx, e)
		require.NoError(t, err)
	}

	t.Run("by category", func(t *testing.T) {
		got, err := repo.ListExpenses(ctx, userID, ExpenseFilter{CategoryID: catID})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by search", func(t *testing.T) {
		got, err := repo.ListExpenses(ctx, userID, ExpenseFilter{Search: "pizza"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Pizza night", got[0].Title)
	})

	t.Run("by date window", func(t *testing.T) {
		got, err := repo.ListExpenses(ctx, userID, ExpenseFilter{StartDate: day(4), EndDate: day(11)})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by amount range", func(t *testing.T) {
		got, err := repo.ListExpenses(ctx, userID, ExpenseFilter{MinCents: 2000, MaxCents: 10000})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by type", func(t *testing.T) {
		got, err := repo.ListExpenses(ctx, userID, ExpenseFilter{Type: core.TypeIncome})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Salary", got[0].Title)
	})

	t.Run("newest first", func(t *testing.T) {
		got, err := repo.ListExpenses(ctx, userID, ExpenseFilter{})
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, "Cinema", got[0].Title)
	})
}

func TestSumExpenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	catID, err := repo.CreateCategory(ctx, core.Category{OwnerID: userID, Name: "Food"})
	require.NoError(t, err)

	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	seed := []core.Expense{
		{OwnerID: userID, Title: "A", Amount: core.Money{Cents: 1000}, CategoryID: catID, Type: core.TypeExpense, Date: day(2)},
		{OwnerID: userID, Title: "B", Amount: core.Money{Cents: 2000}, CategoryID: catID, Type: core.TypeExpense, Date: day(8)},
		{OwnerID: userID, Title: "C", Amount: core.Money{Cents: 4000}, Type: core.TypeExpense, Date: day(8)},
		{OwnerID: userID, Title: "Pay", Amount: core.Money{Cents: 9000}, Type: core.TypeIncome, Date: day(8)},
	}
	for _, e := range seed {
		_, err := repo.CreateExpense(ctx, e)
		require.NoError(t, err)
	}

	total, err := repo.SumExpenses(ctx, userID, 0, day(1), core.TypeExpense)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), total.Cents)

	perCat, err := repo.SumExpenses(ctx, userID, catID, day(5), core.TypeExpense)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), perCat.Cents)

	byCat, err := repo.SumByCategory(ctx, userID, day(1))
	require.NoError(t, err)
	require.Len(t, byCat, 2)
	// Highest total first; uncategorized rows land under id 0.
	assert.Equal(t, int64(0), byCat[0].CategoryID)
	assert.Equal(t, int64(4000), byCat[0].Total.Cents)
	assert.Equal(t, catID, byCat[1].CategoryID)
	assert.Equal(t, int64(3000), byCat[1].Total.Cents)
}

func TestSumByDay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	seed := []core.Expense{
		{OwnerID: userID, Title: "Coffee", Amount: core.Money{Cents: 350}, Type: core.TypeExpense, Date: day(2)},
		{OwnerID: userID, Title: "Lunch", Amount: core.Money{Cents: 1200}, Type: core.TypeExpense, Date: day(2)},
		{OwnerID: userID, Title: "Groceries", Amount: core.Money{Cents: 5000}, Type: core.TypeExpense, Date: day(7)},
		{OwnerID: userID, Title: "Salary", Amount: core.Money{Cents: 200000}, Type: core.TypeIncome, Date: day(7)},
		{OwnerID: userID, Title: "Old", Amount: core.Money{Cents: 900}, Type: core.TypeExpense, Date: day(1)},
	}
	for _, e := range seed {
		_, err := repo.CreateExpense(ctx, e)
		require.NoError(t, err)
	}

	got, err := repo.SumByDay(ctx, userID, day(2))
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Oldest first; same-day rows collapse, income never counts.
	assert.Equal(t, "2024-03-02", got[0].Day)
	assert.Equal(t, int64(1550), got[0].Total.Cents)
	assert.Equal(t, "2024-03-07", got[1].Day)
	assert.Equal(t, int64(5000), got[1].Total.Cents)
}

func TestBudgetUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	catID, err := repo.CreateCategory(ctx, core.Category{OwnerID: userID, Name: "Food"})
	require.NoError(t, err)

	id1, err := repo.UpsertBudget(ctx, core.Budget{OwnerID: userID, CategoryID: catID, Amount: core.Money{Cents: 30000}})
	require.NoError(t, err)

	// Second upsert for the same category replaces the amount, same row.
	id2, err := repo.UpsertBudget(ctx, core.Budget{OwnerID: userID, CategoryID: catID, Amount: core.Money{Cents: 50000}})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	budgets, err := repo.ListBudgets(ctx, userID)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, int64(50000), budgets[0].Amount.Cents)
	assert.Equal(t, "monthly", budgets[0].Period)
}

func TestRecurringTemplates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := repo.CreateTemplate(ctx, core.RecurringTemplate{
		OwnerID:     userID,
		Title:       "Rent",
		Amount:      core.Money{Cents: 90000},
		Frequency:   core.Monthly,
		NextDueDate: due,
		IsActive:    true,
	})
	require.NoError(t, err)

	_, err = repo.CreateTemplate(ctx, core.RecurringTemplate{
		OwnerID:     userID,
		Title:       "Gym",
		Amount:      core.Money{Cents: 4000},
		Frequency:   core.Monthly,
		NextDueDate: due.AddDate(0, 1, 0),
		IsActive:    true,
	})
	require.NoError(t, err)

	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	dueList, err := repo.ListDueTemplates(ctx, userID, now)
	require.NoError(t, err)
	require.Len(t, dueList, 1)
	assert.Equal(t, "Rent", dueList[0].Title)
	assert.True(t, dueList[0].LastGeneratedAt.IsZero())

	next := core.Monthly.NextDue(due)
	require.NoError(t, repo.AdvanceTemplate(ctx, userID, id, next, now))

	dueList, err = repo.ListDueTemplates(ctx, userID, now)
	require.NoError(t, err)
	assert.Empty(t, dueList)

	all, err := repo.ListTemplates(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, next.Equal(all[0].NextDueDate))
	assert.False(t, all[0].LastGeneratedAt.IsZero())

	// Deactivated templates never come up due.
	require.NoError(t, repo.SetTemplateActive(ctx, userID, id, false))
	dueList, err = repo.ListDueTemplates(ctx, userID, now.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, dueList, 1)
	assert.Equal(t, "Gym", dueList[0].Title)
}

func TestChallenges(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	catID, err := repo.CreateCategory(ctx, core.Category{OwnerID: userID, Name: "Food"})
	require.NoError(t, err)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	id, err := repo.CreateChallenge(ctx, core.Challenge{
		OwnerID:      userID,
		Title:        "Spend less on Food",
		CategoryID:   catID,
		TargetAmount: core.Money{Cents: 5000},
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, 7),
		Status:       core.ChallengePending,
	})
	require.NoError(t, err)

	pending, err := repo.HasPendingChallenge(ctx, userID, catID)
	require.NoError(t, err)
	assert.True(t, pending)

	titled, err := repo.HasChallengeTitled(ctx, userID, "Spend less on Food")
	require.NoError(t, err)
	assert.True(t, titled)

	got, err := repo.GetChallenge(ctx, userID, id)
	require.NoError(t, err)
	got.Status = core.ChallengeActive
	got.CurrentAmount = core.Money{Cents: 1200}
	require.NoError(t, repo.UpdateChallenge(ctx, *got))

	pending, err = repo.HasPendingChallenge(ctx, userID, catID)
	require.NoError(t, err)
	assert.False(t, pending)

	active, err := repo.ListChallenges(ctx, userID, core.ChallengeActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1200), active[0].CurrentAmount.Cents)

	all, err := repo.ListChallenges(ctx, userID, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAdviceFreshness(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	_, err := repo.InsertAdvice(ctx, core.AdviceEntry{
		OwnerID:   userID,
		Kind:      core.AdviceKindBudgetAlert,
		Key:       "7",
		Value:     "Cook at home this week.",
		CreatedAt: now.Add(-6 * time.Hour),
	})
	require.NoError(t, err)

	got, err := repo.GetFreshAdvice(ctx, userID, core.AdviceKindBudgetAlert, "7", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Cook at home this week.", got)

	// Outside the freshness window the entry is invisible.
	_, err = repo.GetFreshAdvice(ctx, userID, core.AdviceKindBudgetAlert, "7", now.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	// A different key never matches.
	_, err = repo.GetFreshAdvice(ctx, userID, core.AdviceKindBudgetAlert, "8", now.Add(-24*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	// Newest entry wins when several are fresh.
	_, err = repo.InsertAdvice(ctx, core.AdviceEntry{
		OwnerID:   userID,
		Kind:      core.AdviceKindBudgetAlert,
		Key:       "7",
		Value:     "Newer advice.",
		CreatedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	got, err = repo.GetFreshAdvice(ctx, userID, core.AdviceKindBudgetAlert, "7", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Newer advice.", got)
}

func TestMonthlyReportUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID := newTestUser(t, repo)

	rep := core.MonthlyReport{
		OwnerID:     userID,
		Month:       "2024-03",
		TotalSpent:  core.Money{Cents: 120000},
		TotalIncome: core.Money{Cents: 200000},
		SavingsRate: 40,
		Analysis:    `{"summary":"ok"}`,
	}
	id1, err := repo.UpsertMonthlyReport(ctx, rep)
	require.NoError(t, err)

	rep.TotalSpent = core.Money{Cents: 130000}
	id2, err := repo.UpsertMonthlyReport(ctx, rep)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := repo.GetMonthlyReport(ctx, userID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, int64(130000), got.TotalSpent.Cents)
	assert.Equal(t, float64(40), got.SavingsRate)

	_, err = repo.GetMonthlyReport(ctx, userID, "2024-04")
	assert.ErrorIs(t, err, ErrNotFound)
}
