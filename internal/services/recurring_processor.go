package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
)

// RecurringProcessor materializes due recurring templates into ledger entries.
type RecurringProcessor struct {
	store TemplateStore
}

func NewRecurringProcessor(store TemplateStore) *RecurringProcessor {
	return &RecurringProcessor{store: store}
}

// ProcessDue creates one expense for every active template whose due date has
// passed, then advances the template by one cycle. A failure on one template
// is logged and the batch continues. Returns the number materialized.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, ownerID int64, now time.Time) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	due, err := p.store.ListDueTemplates(ctx, ownerID, now)
	if err != nil {
		return 0, fmt.Errorf("list due templates: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"owner_id", ownerID,
		"due", len(due),
		"processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, tmpl := range due {
		expense := core.Expense{
			OwnerID:    tmpl.OwnerID,
			Title:      tmpl.Title,
			Amount:     tmpl.Amount,
			CategoryID: tmpl.CategoryID,
			Type:       core.TypeExpense,
			Date:       tmpl.NextDueDate,
		}

		if _, err := p.store.CreateExpense(ctx, expense); err != nil {
			slog.ErrorContext(ctx, "Failed to create expense from template",
				"template_id", tmpl.ID,
				"title", tmpl.Title,
				"error", err)
			continue
		}

		nextDue := tmpl.Frequency.NextDue(tmpl.NextDueDate)
		if err := p.store.AdvanceTemplate(ctx, tmpl.OwnerID, tmpl.ID, nextDue, now); err != nil {
			// The expense exists; without the advance the template would
			// materialize again next run.
			slog.ErrorContext(ctx, "Failed to advance template due date",
				"template_id", tmpl.ID,
				"error", err)
			continue
		}

		processed++
		slog.InfoContext(ctx, "Created expense from recurring template",
			"template_id", tmpl.ID,
			"title", tmpl.Title,
			"amount_cents", tmpl.Amount.Cents,
			"frequency", tmpl.Frequency,
			"next_due", nextDue.Format("2006-01-02"))
	}

	slog.InfoContext(ctx, "Recurring template processing complete",
		"owner_id", ownerID,
		"processed", processed,
		"due", len(due))

	return processed, nil
}
