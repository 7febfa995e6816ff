package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/storage"
)

// ExpenseService orchestrates ledger writes across storage and the event
// bus. The bus is optional; publish failures never fail the request.
type ExpenseService struct {
	store     *storage.SQLiteRepository
	publisher EventPublisher
}

func NewExpenseService(store *storage.SQLiteRepository, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{store: store, publisher: publisher}
}

func (s *ExpenseService) Create(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	id, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	s.publish(ctx, id, e.OwnerID, events.ActionCreated)
	return id, nil
}

func (s *ExpenseService) Update(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return err
	}

	s.publish(ctx, e.ID, e.OwnerID, events.ActionUpdated)
	return nil
}

func (s *ExpenseService) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.store.DeleteExpense(ctx, ownerID, id); err != nil {
		return err
	}

	s.publish(ctx, id, ownerID, events.ActionDeleted)
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, ownerID, id int64) (*core.Expense, error) {
	return s.store.GetExpense(ctx, ownerID, id)
}

func (s *ExpenseService) List(ctx context.Context, ownerID int64, f storage.ExpenseFilter) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, ownerID, f)
}

func (s *ExpenseService) publish(ctx context.Context, expenseID, ownerID int64, action string) {
	if s.publisher == nil {
		return
	}

	// Bounded so a slow broker cannot hold up the response.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.publisher.PublishExpenseEvent(ctx, expenseID, ownerID, action); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"expense_id", expenseID,
			"action", action,
			"error", err)
	}
}
