package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"fintrack/internal/core"
)

const maxRequestBody = 1 << 20 // 1 MB

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a request body into v, rejecting unknown fields and
// oversized payloads.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func queryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func queryDate(r *http.Request, name string) time.Time {
	t, _ := time.Parse(dateLayout, r.URL.Query().Get(name))
	return t
}

// Amounts cross the API boundary in currency units; cents stay internal.

type categoryJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, Color: c.Color, CreatedAt: c.CreatedAt}
}

type expenseJSON struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Amount     float64 `json:"amount"`
	CategoryID int64   `json:"category_id"`
	Type       string  `json:"type"`
	Date       string  `json:"date"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:         e.ID,
		Title:      e.Title,
		Amount:     e.Amount.Units(),
		CategoryID: e.CategoryID,
		Type:       string(e.Type),
		Date:       e.Date.Format(dateLayout),
	}
}

type budgetJSON struct {
	ID         int64   `json:"id"`
	CategoryID int64   `json:"category_id"`
	Amount     float64 `json:"amount"`
	Period     string  `json:"period"`
}

func toBudgetJSON(b core.Budget) budgetJSON {
	return budgetJSON{ID: b.ID, CategoryID: b.CategoryID, Amount: b.Amount.Units(), Period: b.Period}
}

type templateJSON struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Amount          float64 `json:"amount"`
	CategoryID      int64   `json:"category_id"`
	Frequency       string  `json:"frequency"`
	NextDueDate     string  `json:"next_due_date"`
	IsActive        bool    `json:"is_active"`
	LastGeneratedAt string  `json:"last_generated_at,omitempty"`
}

func toTemplateJSON(t core.RecurringTemplate) templateJSON {
	out := templateJSON{
		ID:          t.ID,
		Title:       t.Title,
		Amount:      t.Amount.Units(),
		CategoryID:  t.CategoryID,
		Frequency:   string(t.Frequency),
		NextDueDate: t.NextDueDate.Format(dateLayout),
		IsActive:    t.IsActive,
	}
	if !t.LastGeneratedAt.IsZero() {
		out.LastGeneratedAt = t.LastGeneratedAt.Format(dateLayout)
	}
	return out
}

type challengeJSON struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	CategoryID    int64   `json:"category_id"`
	TargetAmount  float64 `json:"target_amount"`
	CurrentAmount float64 `json:"current_amount"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	Status        string  `json:"status"`
}

func toChallengeJSON(c core.Challenge) challengeJSON {
	return challengeJSON{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		CategoryID:    c.CategoryID,
		TargetAmount:  c.TargetAmount.Units(),
		CurrentAmount: c.CurrentAmount.Units(),
		StartDate:     c.StartDate.Format(dateLayout),
		EndDate:       c.EndDate.Format(dateLayout),
		Status:        string(c.Status),
	}
}

func toChallengeList(cs []core.Challenge) []challengeJSON {
	out := make([]challengeJSON, 0, len(cs))
	for _, c := range cs {
		out = append(out, toChallengeJSON(c))
	}
	return out
}
