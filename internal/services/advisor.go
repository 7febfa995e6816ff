package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/storage"
)

const (
	// NoCredentialMessage is returned by advice operations when no
	// completion credential is configured.
	NoCredentialMessage = "AI insights are not configured. Set an API key to enable them."

	adviceHistoryWindow = 365 * 24 * time.Hour
	suggestWindowDays   = 90
	autoCategorizeBatch = 50

	recurringScanLimit = 100
	recurringMinSample = 5
	queryScanLimit     = 1000

	// QueryFallbackAnswer is served when a natural-language question cannot
	// be translated or executed.
	QueryFallbackAnswer = "Sorry, I couldn't process that question."
)

// BudgetSuggestion is a proposed monthly cap for one category, derived from
// trailing spend.
type BudgetSuggestion struct {
	CategoryID   int64      `json:"category_id"`
	CategoryName string     `json:"category"`
	MonthlyAvg   core.Money `json:"monthly_avg"`
	Suggested    core.Money `json:"suggested"`
}

// Advisor bundles the LLM-backed insight operations: long-range advice,
// natural-language expense entry, budget suggestions, auto-categorization,
// and the monthly audit.
type Advisor struct {
	store     AdvisorStore
	completer Completer
}

func NewAdvisor(store AdvisorStore, completer Completer) *Advisor {
	return &Advisor{store: store, completer: completer}
}

// categoryNames returns id -> name for the owner's categories.
func (a *Advisor) categoryNames(ctx context.Context, ownerID int64) (map[int64]string, []core.Category, error) {
	categories, err := a.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("list categories: %w", err)
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, categories, nil
}

// spendSummary renders per-category totals since the cutoff as prompt text.
func (a *Advisor) spendSummary(ctx context.Context, ownerID int64, since time.Time, names map[int64]string) (string, error) {
	totals, err := a.store.SumByCategory(ctx, ownerID, since)
	if err != nil {
		return "", fmt.Errorf("sum by category: %w", err)
	}

	var b strings.Builder
	for _, t := range totals {
		name := names[t.CategoryID]
		if name == "" {
			name = uncategorizedName
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, t.Total)
	}
	return b.String(), nil
}

// GenerateAdvice summarizes the trailing year of spending and asks for three
// observations. The result is persisted as a Suggestion. Without a
// credential a fixed configuration message is returned; completion failures
// return the error unwrapped so callers can degrade.
func (a *Advisor) GenerateAdvice(ctx context.Context, ownerID int64, now time.Time) (string, error) {
	if a.completer == nil {
		return NoCredentialMessage, nil
	}

	names, _, err := a.categoryNames(ctx, ownerID)
	if err != nil {
		return "", err
	}
	summary, err := a.spendSummary(ctx, ownerID, now.Add(-adviceHistoryWindow), names)
	if err != nil {
		return "", err
	}
	if summary == "" {
		return "Not enough spending history yet. Record a few expenses and ask again.", nil
	}

	prompt := fmt.Sprintf(
		"A user's total spending by category over the last year:\n%s\n"+
			"Give exactly 3 short observations about their spending habits, each with one actionable suggestion. "+
			"Plain text, one observation per line.",
		summary)

	text, err := a.completer.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 500})
	if err != nil {
		return "", fmt.Errorf("advice completion: %w", err)
	}

	if _, err := a.store.InsertSuggestion(ctx, ownerID, text); err != nil {
		slog.ErrorContext(ctx, "Failed to persist suggestion",
			"owner_id", ownerID,
			"error", err)
	}
	return text, nil
}

// parsedExpense is the JSON shape requested when parsing free-form text.
type parsedExpense struct {
	Title      string  `json:"title"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date"`
	CategoryID int64   `json:"category_id"`
}

// ParseExpense turns free-form text like "coffee 3.50 yesterday" into a
// validated Expense. The entry is not persisted; the caller decides.
func (a *Advisor) ParseExpense(ctx context.Context, ownerID int64, text string, now time.Time) (core.Expense, error) {
	if a.completer == nil {
		return core.Expense{}, llm.ErrNoCredential
	}

	names, categories, err := a.categoryNames(ctx, ownerID)
	if err != nil {
		return core.Expense{}, err
	}

	var catList strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&catList, "- id %d: %s\n", c.ID, c.Name)
	}

	prompt := fmt.Sprintf(
		"Today is %s. The user's expense categories:\n%s\n"+
			"Parse this expense description into JSON with keys title (string), amount (number), "+
			"date (YYYY-MM-DD), category_id (one of the ids above, or 0 if none fits):\n%q\n"+
			"Reply with JSON only.",
		now.Format("2006-01-02"), catList.String(), text)

	var parsed parsedExpense
	if err := a.completer.CompleteJSON(ctx, llm.Request{Prompt: prompt, MaxTokens: 200}, &parsed); err != nil {
		return core.Expense{}, fmt.Errorf("parse expense completion: %w", err)
	}

	date := now
	if parsed.Date != "" {
		if d, err := time.Parse("2006-01-02", parsed.Date); err == nil {
			date = d
		}
	}
	if _, ok := names[parsed.CategoryID]; !ok {
		parsed.CategoryID = 0
	}

	e := core.Expense{
		OwnerID:    ownerID,
		Title:      strings.TrimSpace(parsed.Title),
		Amount:     core.FromUnits(parsed.Amount),
		CategoryID: parsed.CategoryID,
		Type:       core.TypeExpense,
		Date:       date,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("parsed expense invalid: %w", err)
	}
	return e, nil
}

// SuggestBudgets proposes a monthly cap per category from 90-day averages.
// The completion collaborator rounds the numbers to friendly values; on any
// failure the deterministic fallback is average plus ten percent.
func (a *Advisor) SuggestBudgets(ctx context.Context, ownerID int64, now time.Time) ([]BudgetSuggestion, error) {
	names, _, err := a.categoryNames(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	totals, err := a.store.SumByCategory(ctx, ownerID, now.AddDate(0, 0, -suggestWindowDays))
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}

	suggestions := make([]BudgetSuggestion, 0, len(totals))
	for _, t := range totals {
		if t.CategoryID == 0 {
			continue
		}
		avg := core.Money{Cents: t.Total.Cents / 3}
		suggestions = append(suggestions, BudgetSuggestion{
			CategoryID:   t.CategoryID,
			CategoryName: names[t.CategoryID],
			MonthlyAvg:   avg,
			Suggested:    core.Money{Cents: avg.Cents + avg.Cents/10},
		})
	}
	if len(suggestions) == 0 || a.completer == nil {
		return suggestions, nil
	}

	var summary strings.Builder
	for _, s := range suggestions {
		fmt.Fprintf(&summary, "- %s: %s/month on average\n", s.CategoryName, s.MonthlyAvg)
	}
	prompt := fmt.Sprintf(
		"A user's average monthly spending by category over the last 90 days:\n%s\n"+
			"Suggest a realistic monthly budget cap per category, rounded to friendly values slightly above "+
			"the average. Reply with a JSON object mapping category name to a number in currency units. JSON only.",
		summary.String())

	rounded := map[string]float64{}
	if err := a.completer.CompleteJSON(ctx, llm.Request{Prompt: prompt, MaxTokens: 300}, &rounded); err != nil {
		slog.ErrorContext(ctx, "Budget suggestion completion failed, using averages",
			"owner_id", ownerID,
			"error", err)
		return suggestions, nil
	}

	for i := range suggestions {
		if v, ok := rounded[suggestions[i].CategoryName]; ok && v > 0 {
			suggestions[i].Suggested = core.FromUnits(v)
		}
	}
	return suggestions, nil
}

// AutoCategorize asks the completion collaborator to assign categories to a
// batch of uncategorized expenses. Unknown expense or category ids in the
// reply are ignored. Returns the number of expenses updated.
func (a *Advisor) AutoCategorize(ctx context.Context, ownerID int64) (int, error) {
	if a.completer == nil {
		return 0, llm.ErrNoCredential
	}

	names, categories, err := a.categoryNames(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(categories) == 0 {
		return 0, nil
	}

	expenses, err := a.store.ListUncategorized(ctx, ownerID, autoCategorizeBatch)
	if err != nil {
		return 0, fmt.Errorf("list uncategorized: %w", err)
	}
	if len(expenses) == 0 {
		return 0, nil
	}

	known := make(map[int64]bool, len(expenses))
	var expList, catList strings.Builder
	for _, e := range expenses {
		known[e.ID] = true
		fmt.Fprintf(&expList, "- id %d: %s (%s)\n", e.ID, e.Title, e.Amount)
	}
	for _, c := range categories {
		fmt.Fprintf(&catList, "- id %d: %s\n", c.ID, c.Name)
	}

	prompt := fmt.Sprintf(
		"Assign each expense to the best fitting category.\nCategories:\n%s\nExpenses:\n%s\n"+
			"Reply with a JSON object mapping expense id to category id. Omit expenses that fit no category. JSON only.",
		catList.String(), expList.String())

	assignments := map[string]int64{}
	if err := a.completer.CompleteJSON(ctx, llm.Request{Prompt: prompt, MaxTokens: 500}, &assignments); err != nil {
		return 0, fmt.Errorf("auto-categorize completion: %w", err)
	}

	updated := 0
	for rawID, catID := range assignments {
		var expenseID int64
		if _, err := fmt.Sscanf(rawID, "%d", &expenseID); err != nil {
			continue
		}
		if !known[expenseID] {
			continue
		}
		if _, ok := names[catID]; !ok {
			continue
		}
		if err := a.store.SetExpenseCategory(ctx, ownerID, expenseID, catID); err != nil {
			slog.ErrorContext(ctx, "Failed to set expense category",
				"expense_id", expenseID,
				"category_id", catID,
				"error", err)
			continue
		}
		updated++
	}

	slog.InfoContext(ctx, "Auto-categorization complete",
		"owner_id", ownerID,
		"batch", len(expenses),
		"updated", updated)
	return updated, nil
}

// RecurringCandidate is a suspected subscription or repeating charge spotted
// in recent history but not yet tracked as a template.
type RecurringCandidate struct {
	Title      string  `json:"title"`
	Amount     float64 `json:"amount"`
	Frequency  string  `json:"frequency"`  // "monthly" or "weekly"
	Confidence float64 `json:"confidence"` // 0.0 to 1.0
	Reason     string  `json:"reason"`
}

// DetectRecurring scans the last hundred expenses for charges that look like
// untracked subscriptions. Fewer than five expenses is too little signal and
// yields an empty list, as does a completion failure; only a missing
// credential is an error.
func (a *Advisor) DetectRecurring(ctx context.Context, ownerID int64, now time.Time) ([]RecurringCandidate, error) {
	if a.completer == nil {
		return nil, llm.ErrNoCredential
	}

	expenses, err := a.store.ListExpenses(ctx, ownerID, storage.ExpenseFilter{
		Type:  core.TypeExpense,
		Limit: recurringScanLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if len(expenses) < recurringMinSample {
		return []RecurringCandidate{}, nil
	}

	templates, err := a.store.ListTemplates(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	tracked := make(map[string]bool, len(templates))
	var trackedList strings.Builder
	for _, t := range templates {
		tracked[strings.ToLower(strings.TrimSpace(t.Title))] = true
		fmt.Fprintf(&trackedList, "- %s (%s)\n", t.Title, t.Amount)
	}
	if trackedList.Len() == 0 {
		trackedList.WriteString("(none)\n")
	}

	var history strings.Builder
	for _, e := range expenses {
		fmt.Fprintf(&history, "- %s: %s on %s\n", e.Title, e.Amount, e.Date.Format("2006-01-02"))
	}

	prompt := fmt.Sprintf(
		"Today is %s. A user's recent expenses, newest first:\n%s\n"+
			"Recurring templates they already track (exclude these):\n%s\n"+
			"Find charges that repeat at a steady interval and look like subscriptions or bills. "+
			"Reply with a JSON array of objects with keys title (simplified name), amount (number), "+
			"frequency (\"monthly\" or \"weekly\"), confidence (0.0-1.0), reason (short string). "+
			"Empty array if nothing repeats. JSON only.",
		now.Format("2006-01-02"), history.String(), trackedList.String())

	var candidates []RecurringCandidate
	if err := a.completer.CompleteJSON(ctx, llm.Request{Prompt: prompt, MaxTokens: 600}, &candidates); err != nil {
		slog.ErrorContext(ctx, "Recurring detection completion failed",
			"owner_id", ownerID,
			"error", err)
		return []RecurringCandidate{}, nil
	}

	out := make([]RecurringCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" || c.Amount <= 0 {
			continue
		}
		if c.Frequency != "monthly" && c.Frequency != "weekly" {
			continue
		}
		if tracked[strings.ToLower(c.Title)] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// queryPlan is the JSON shape requested when translating a natural-language
// question into a ledger aggregation.
type queryPlan struct {
	Operation string `json:"operation"`
	Filters   struct {
		CategoryName string `json:"category_name"`
		StartDate    string `json:"start_date"`
		EndDate      string `json:"end_date"`
		Merchant     string `json:"merchant"`
	} `json:"filters"`
	AnswerTemplate string `json:"answer_template"`
}

// AnswerQuery answers a free-form question about the ledger. The completion
// collaborator only translates the question into an aggregation plan; the
// numbers come from the store, never from the model. Translation failures
// return an error so the caller can serve QueryFallbackAnswer.
func (a *Advisor) AnswerQuery(ctx context.Context, ownerID int64, question string, now time.Time) (string, error) {
	if a.completer == nil {
		return "", llm.ErrNoCredential
	}

	_, categories, err := a.categoryNames(ctx, ownerID)
	if err != nil {
		return "", err
	}
	var catList strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&catList, "- %s\n", c.Name)
	}

	prompt := fmt.Sprintf(
		"Today is %s. The user's expense categories:\n%s\n"+
			"Translate this question about their spending into JSON with keys: "+
			"operation (one of \"total_spend\", \"count_transactions\", \"average_spend\"), "+
			"filters (object with optional keys category_name, start_date (YYYY-MM-DD), end_date (YYYY-MM-DD), "+
			"merchant (partial title match)), and answer_template (a sentence with a {value} placeholder).\n"+
			"Question: %q\nJSON only.",
		now.Format("2006-01-02"), catList.String(), question)

	var plan queryPlan
	if err := a.completer.CompleteJSON(ctx, llm.Request{Prompt: prompt, MaxTokens: 300}, &plan); err != nil {
		return "", fmt.Errorf("query completion: %w", err)
	}

	filter := storage.ExpenseFilter{
		Type:   core.TypeExpense,
		Search: strings.TrimSpace(plan.Filters.Merchant),
		Limit:  queryScanLimit,
	}
	if name := strings.TrimSpace(plan.Filters.CategoryName); name != "" {
		for _, c := range categories {
			if strings.EqualFold(c.Name, name) {
				filter.CategoryID = c.ID
				break
			}
		}
	}
	if d, err := time.Parse("2006-01-02", plan.Filters.StartDate); err == nil {
		filter.StartDate = d
	}
	if d, err := time.Parse("2006-01-02", plan.Filters.EndDate); err == nil {
		filter.EndDate = d
	}

	expenses, err := a.store.ListExpenses(ctx, ownerID, filter)
	if err != nil {
		return "", fmt.Errorf("list expenses: %w", err)
	}

	var total int64
	for _, e := range expenses {
		total += e.Amount.Cents
	}

	var value string
	switch plan.Operation {
	case "total_spend":
		value = core.Money{Cents: total}.String()
	case "count_transactions":
		value = fmt.Sprintf("%d", len(expenses))
	case "average_spend":
		avg := core.Money{}
		if len(expenses) > 0 {
			avg = core.Money{Cents: total / int64(len(expenses))}
		}
		value = avg.String()
	default:
		return "I didn't understand the question. Try asking about totals, counts, or averages.", nil
	}

	template := strings.TrimSpace(plan.AnswerTemplate)
	if !strings.Contains(template, "{value}") {
		template = "The answer is {value}."
	}
	return strings.ReplaceAll(template, "{value}", value), nil
}

// MonthlyAudit grades the previous calendar month: totals, savings rate,
// month-over-month change, plus an LLM analysis. The report is upserted so
// re-running a month is safe.
func (a *Advisor) MonthlyAudit(ctx context.Context, ownerID int64, now time.Time) (*core.MonthlyReport, error) {
	thisStart, _ := core.MonthSpan(now)
	prevStart := thisStart.AddDate(0, -1, 0)
	beforeStart := thisStart.AddDate(0, -2, 0)

	spent, err := a.store.SumExpensesBetween(ctx, ownerID, prevStart, thisStart, core.TypeExpense)
	if err != nil {
		return nil, fmt.Errorf("sum month spend: %w", err)
	}
	income, err := a.store.SumExpensesBetween(ctx, ownerID, prevStart, thisStart, core.TypeIncome)
	if err != nil {
		return nil, fmt.Errorf("sum month income: %w", err)
	}
	prevSpent, err := a.store.SumExpensesBetween(ctx, ownerID, beforeStart, prevStart, core.TypeExpense)
	if err != nil {
		return nil, fmt.Errorf("sum prior month spend: %w", err)
	}

	savingsRate := 0.0
	if income.Cents > 0 {
		savingsRate = float64(income.Cents-spent.Cents) / float64(income.Cents) * 100
	}
	change := 0.0
	if prevSpent.Cents > 0 {
		change = float64(spent.Cents-prevSpent.Cents) / float64(prevSpent.Cents) * 100
	}

	analysis := a.auditAnalysis(ctx, spent, income, savingsRate, change)

	rep := core.MonthlyReport{
		OwnerID:     ownerID,
		Month:       prevStart.Format("2006-01"),
		TotalSpent:  spent,
		TotalIncome: income,
		SavingsRate: savingsRate,
		Analysis:    analysis,
	}
	id, err := a.store.UpsertMonthlyReport(ctx, rep)
	if err != nil {
		return nil, fmt.Errorf("upsert monthly report: %w", err)
	}
	rep.ID = id
	return &rep, nil
}

func (a *Advisor) auditAnalysis(ctx context.Context, spent, income core.Money, savingsRate, change float64) string {
	fallback := func() string {
		b, _ := json.Marshal(map[string]any{
			"summary":      fmt.Sprintf("Spent %s against %s income.", spent, income),
			"savings_rate": savingsRate,
		})
		return string(b)
	}
	if a.completer == nil {
		return fallback()
	}

	prompt := fmt.Sprintf(
		"Last month a user spent %s and earned %s (savings rate %.1f%%, spending change vs prior month %.1f%%). "+
			"Grade the month and summarize it. Reply with a JSON object with keys: grade (A-F), summary (string), "+
			"highlights (array of strings). JSON only.",
		spent, income, savingsRate, change)

	var analysis map[string]any
	if err := a.completer.CompleteJSON(ctx, llm.Request{Prompt: prompt, MaxTokens: 400}, &analysis); err != nil {
		slog.ErrorContext(ctx, "Monthly audit completion failed", "error", err)
		return fallback()
	}
	b, err := json.Marshal(analysis)
	if err != nil {
		return fallback()
	}
	return string(b)
}
