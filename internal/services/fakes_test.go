package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/storage"
)

var errNotFound = storage.ErrNotFound

// fakeStore is an in-memory store satisfying the service port interfaces,
// with per-method error injection.
type fakeStore struct {
	expenses   []core.Expense
	templates  []core.RecurringTemplate
	budgets    []core.Budget
	categories []core.Category
	challenges []core.Challenge
	advice     []core.AdviceEntry
	sugg       []string
	reports    map[string]core.MonthlyReport

	nextID int64

	failCreateExpense bool
	failAdvance       bool
	failInsertAdvice  bool
	failSetCategory   bool

	advanceCalls       int
	insertAdviceCalls  int
	createExpenseCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, reports: map[string]core.MonthlyReport{}}
}

func (f *fakeStore) id() int64 {
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakeStore) ListDueTemplates(_ context.Context, ownerID int64, now time.Time) ([]core.RecurringTemplate, error) {
	var out []core.RecurringTemplate
	for _, t := range f.templates {
		if t.OwnerID == ownerID && t.IsActive && !t.NextDueDate.After(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateExpense(_ context.Context, e core.Expense) (int64, error) {
	f.createExpenseCalls++
	if f.failCreateExpense {
		return 0, errors.New("disk full")
	}
	e.ID = f.id()
	f.expenses = append(f.expenses, e)
	return e.ID, nil
}

func (f *fakeStore) AdvanceTemplate(_ context.Context, ownerID, id int64, nextDue, generatedAt time.Time) error {
	f.advanceCalls++
	if f.failAdvance {
		return errors.New("locked")
	}
	for i := range f.templates {
		if f.templates[i].ID == id && f.templates[i].OwnerID == ownerID {
			f.templates[i].NextDueDate = nextDue
			f.templates[i].LastGeneratedAt = generatedAt
			return nil
		}
	}
	return errNotFound
}

func (f *fakeStore) ListBudgets(_ context.Context, ownerID int64) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range f.budgets {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCategory(_ context.Context, ownerID, id int64) (*core.Category, error) {
	for _, c := range f.categories {
		if c.ID == id && c.OwnerID == ownerID {
			cat := c
			return &cat, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeStore) ListCategories(_ context.Context, ownerID int64) ([]core.Category, error) {
	var out []core.Category
	for _, c := range f.categories {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) SumExpenses(_ context.Context, ownerID, categoryID int64, since time.Time, typ core.EntryType) (core.Money, error) {
	var cents int64
	for _, e := range f.expenses {
		if e.OwnerID != ownerID || e.Type != typ || e.Date.Before(since) {
			continue
		}
		if categoryID > 0 && e.CategoryID != categoryID {
			continue
		}
		cents += e.Amount.Cents
	}
	return core.Money{Cents: cents}, nil
}

func (f *fakeStore) SumExpensesBetween(_ context.Context, ownerID int64, start, end time.Time, typ core.EntryType) (core.Money, error) {
	var cents int64
	for _, e := range f.expenses {
		if e.OwnerID == ownerID && e.Type == typ && !e.Date.Before(start) && e.Date.Before(end) {
			cents += e.Amount.Cents
		}
	}
	return core.Money{Cents: cents}, nil
}

func (f *fakeStore) SumByCategory(_ context.Context, ownerID int64, since time.Time) ([]storage.CategoryTotal, error) {
	totals := map[int64]int64{}
	for _, e := range f.expenses {
		if e.OwnerID == ownerID && e.Type == core.TypeExpense && !e.Date.Before(since) {
			totals[e.CategoryID] += e.Amount.Cents
		}
	}
	var out []storage.CategoryTotal
	for id, cents := range totals {
		out = append(out, storage.CategoryTotal{CategoryID: id, Total: core.Money{Cents: cents}})
	}
	// Highest first, as the repository orders them.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Total.Cents > out[i].Total.Cents {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CountExpensesSince(_ context.Context, ownerID int64, since time.Time) (int, error) {
	n := 0
	for _, e := range f.expenses {
		if e.OwnerID == ownerID && !e.Date.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListExpenses(_ context.Context, ownerID int64, filter storage.ExpenseFilter) ([]core.Expense, error) {
	var out []core.Expense
	for _, e := range f.expenses {
		if e.OwnerID != ownerID {
			continue
		}
		if filter.CategoryID > 0 && e.CategoryID != filter.CategoryID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(filter.Search)) {
			continue
		}
		if !filter.StartDate.IsZero() && e.Date.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && e.Date.After(filter.EndDate) {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, e)
	}
	// Newest first, as the repository orders them.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Date.After(out[i].Date) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListTemplates(_ context.Context, ownerID int64) ([]core.RecurringTemplate, error) {
	var out []core.RecurringTemplate
	for _, t := range f.templates {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUncategorized(_ context.Context, ownerID int64, limit int) ([]core.Expense, error) {
	var out []core.Expense
	for _, e := range f.expenses {
		if e.OwnerID == ownerID && e.CategoryID == 0 {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SetExpenseCategory(_ context.Context, ownerID, expenseID, categoryID int64) error {
	if f.failSetCategory {
		return errors.New("locked")
	}
	for i := range f.expenses {
		if f.expenses[i].ID == expenseID && f.expenses[i].OwnerID == ownerID {
			f.expenses[i].CategoryID = categoryID
			return nil
		}
	}
	return errNotFound
}

func (f *fakeStore) GetFreshAdvice(_ context.Context, ownerID int64, kind, key string, cutoff time.Time) (string, error) {
	best := -1
	for i, e := range f.advice {
		if e.OwnerID != ownerID || e.Kind != kind || e.Key != key || e.CreatedAt.Before(cutoff) {
			continue
		}
		if best < 0 || e.CreatedAt.After(f.advice[best].CreatedAt) {
			best = i
		}
	}
	if best < 0 {
		return "", errNotFound
	}
	return f.advice[best].Value, nil
}

func (f *fakeStore) InsertAdvice(_ context.Context, e core.AdviceEntry) (int64, error) {
	f.insertAdviceCalls++
	if f.failInsertAdvice {
		return 0, errors.New("locked")
	}
	e.ID = f.id()
	f.advice = append(f.advice, e)
	return e.ID, nil
}

func (f *fakeStore) CreateChallenge(_ context.Context, c core.Challenge) (int64, error) {
	c.ID = f.id()
	f.challenges = append(f.challenges, c)
	return c.ID, nil
}

func (f *fakeStore) GetChallenge(_ context.Context, ownerID, id int64) (*core.Challenge, error) {
	for _, c := range f.challenges {
		if c.ID == id && c.OwnerID == ownerID {
			ch := c
			return &ch, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeStore) ListChallenges(_ context.Context, ownerID int64, status core.ChallengeStatus) ([]core.Challenge, error) {
	var out []core.Challenge
	for _, c := range f.challenges {
		if c.OwnerID == ownerID && (status == "" || c.Status == status) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) HasPendingChallenge(_ context.Context, ownerID, categoryID int64) (bool, error) {
	for _, c := range f.challenges {
		if c.OwnerID == ownerID && c.CategoryID == categoryID && c.Status == core.ChallengePending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) HasChallengeTitled(_ context.Context, ownerID int64, title string) (bool, error) {
	for _, c := range f.challenges {
		if c.OwnerID == ownerID && c.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpdateChallenge(_ context.Context, c core.Challenge) error {
	for i := range f.challenges {
		if f.challenges[i].ID == c.ID && f.challenges[i].OwnerID == c.OwnerID {
			f.challenges[i] = c
			return nil
		}
	}
	return errNotFound
}

func (f *fakeStore) InsertSuggestion(_ context.Context, ownerID int64, content string) (int64, error) {
	f.sugg = append(f.sugg, content)
	return f.id(), nil
}

func (f *fakeStore) UpsertMonthlyReport(_ context.Context, rep core.MonthlyReport) (int64, error) {
	existing, ok := f.reports[rep.Month]
	if ok {
		rep.ID = existing.ID
	} else {
		rep.ID = f.id()
	}
	f.reports[rep.Month] = rep
	return rep.ID, nil
}

// fakeCompleter returns canned text or an error, and records prompts.
type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, req llm.Request, v any) error {
	text, err := f.Complete(ctx, req)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(llm.StripFences(text)), v)
}
