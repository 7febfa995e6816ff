package services

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestProcessDue_WeeklyRollover(t *testing.T) {
	store := newFakeStore()
	store.templates = []core.RecurringTemplate{{
		ID:          1,
		OwnerID:     1,
		Title:       "Netflix",
		Amount:      core.Money{Cents: 999},
		CategoryID:  3,
		Frequency:   core.Weekly,
		NextDueDate: date(2024, 1, 1),
		IsActive:    true,
	}}

	p := NewRecurringProcessor(store)
	now := date(2024, 1, 8)

	n, err := p.ProcessDue(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ProcessDue() = %d, want 1", n)
	}

	if len(store.expenses) != 1 {
		t.Fatalf("expenses = %d, want 1", len(store.expenses))
	}
	e := store.expenses[0]
	if !e.Date.Equal(date(2024, 1, 1)) {
		t.Errorf("expense date = %v, want template due date", e.Date)
	}
	if e.Type != core.TypeExpense {
		t.Errorf("expense type = %v, want expense", e.Type)
	}
	if e.Amount.Cents != 999 || e.Title != "Netflix" || e.CategoryID != 3 {
		t.Errorf("expense does not copy template fields: %+v", e)
	}

	tmpl := store.templates[0]
	if !tmpl.NextDueDate.Equal(date(2024, 1, 8)) {
		t.Errorf("next due = %v, want 2024-01-08", tmpl.NextDueDate)
	}
	if !tmpl.LastGeneratedAt.Equal(now) {
		t.Errorf("last generated = %v, want now", tmpl.LastGeneratedAt)
	}
}

func TestProcessDue_Idempotent(t *testing.T) {
	store := newFakeStore()
	store.templates = []core.RecurringTemplate{{
		ID:          1,
		OwnerID:     1,
		Title:       "Gym",
		Amount:      core.Money{Cents: 4000},
		Frequency:   core.Weekly,
		NextDueDate: date(2024, 1, 1),
		IsActive:    true,
	}}

	p := NewRecurringProcessor(store)
	now := date(2024, 1, 5)

	n, err := p.ProcessDue(context.Background(), 1, now)
	if err != nil || n != 1 {
		t.Fatalf("first ProcessDue() = %d, %v, want 1, nil", n, err)
	}

	// The advanced due date (Jan 8) is past now, so a second run is a no-op.
	n, err = p.ProcessDue(context.Background(), 1, now)
	if err != nil || n != 0 {
		t.Fatalf("second ProcessDue() = %d, %v, want 0, nil", n, err)
	}
	if len(store.expenses) != 1 {
		t.Errorf("expenses = %d, want 1 after double run", len(store.expenses))
	}
}

func TestProcessDue_MonthlyAdvancesOneCycle(t *testing.T) {
	store := newFakeStore()
	store.templates = []core.RecurringTemplate{{
		ID:          1,
		OwnerID:     1,
		Title:       "Rent",
		Amount:      core.Money{Cents: 90000},
		Frequency:   core.Monthly,
		NextDueDate: date(2024, 1, 31),
		IsActive:    true,
	}}

	p := NewRecurringProcessor(store)

	// Even when several cycles have elapsed, one call advances one cycle.
	n, err := p.ProcessDue(context.Background(), 1, date(2024, 4, 15))
	if err != nil || n != 1 {
		t.Fatalf("ProcessDue() = %d, %v, want 1, nil", n, err)
	}
	if got := store.templates[0].NextDueDate; !got.Equal(date(2024, 2, 29)) {
		t.Errorf("next due = %v, want leap-clamped 2024-02-29", got)
	}
}

func TestProcessDue_NothingDue(t *testing.T) {
	store := newFakeStore()
	store.templates = []core.RecurringTemplate{{
		ID:          1,
		OwnerID:     1,
		Title:       "Rent",
		Amount:      core.Money{Cents: 90000},
		Frequency:   core.Monthly,
		NextDueDate: date(2024, 6, 1),
		IsActive:    true,
	}}

	p := NewRecurringProcessor(store)
	n, err := p.ProcessDue(context.Background(), 1, date(2024, 5, 1))
	if err != nil || n != 0 {
		t.Fatalf("ProcessDue() = %d, %v, want 0, nil", n, err)
	}
	if store.createExpenseCalls != 0 {
		t.Error("no expense should be created when nothing is due")
	}
}

func TestProcessDue_InactiveSkipped(t *testing.T) {
	store := newFakeStore()
	store.templates = []core.RecurringTemplate{{
		ID:          1,
		OwnerID:     1,
		Title:       "Old sub",
		Amount:      core.Money{Cents: 500},
		Frequency:   core.Weekly,
		NextDueDate: date(2024, 1, 1),
		IsActive:    false,
	}}

	p := NewRecurringProcessor(store)
	n, err := p.ProcessDue(context.Background(), 1, date(2024, 2, 1))
	if err != nil || n != 0 {
		t.Fatalf("ProcessDue() = %d, %v, want 0, nil", n, err)
	}
}

func TestProcessDue_FailureContinuesBatch(t *testing.T) {
	store := newFakeStore()
	store.templates = []core.RecurringTemplate{
		{ID: 1, OwnerID: 1, Title: "A", Amount: core.Money{Cents: 100}, Frequency: core.Weekly, NextDueDate: date(2024, 1, 1), IsActive: true},
		{ID: 2, OwnerID: 1, Title: "B", Amount: core.Money{Cents: 200}, Frequency: core.Weekly, NextDueDate: date(2024, 1, 1), IsActive: true},
	}
	store.failCreateExpense = true

	p := NewRecurringProcessor(store)
	n, err := p.ProcessDue(context.Background(), 1, date(2024, 1, 2))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v, want nil despite item failures", err)
	}
	if n != 0 {
		t.Errorf("ProcessDue() = %d, want 0", n)
	}
	if store.createExpenseCalls != 2 {
		t.Errorf("createExpenseCalls = %d, want 2 (batch continues)", store.createExpenseCalls)
	}
}
