package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/storage"
)

const (
	// onboardingTitle names the challenge seeded for users with no recent
	// spending history. It is created at most once per user.
	onboardingTitle = "First Step"

	onboardingTargetCents = 10000
	challengeDuration     = 7 * 24 * time.Hour
	spendHistoryWindow    = 30 * 24 * time.Hour
	topCategories         = 5
)

var (
	// ErrChallengeNotPending is returned when accepting a challenge that
	// already left the pending state.
	ErrChallengeNotPending = errors.New("challenge is not pending")
)

// ChallengeService generates weekly spend-less challenges and grades their
// progress against the ledger.
type ChallengeService struct {
	store     ChallengeStore
	completer Completer
}

func NewChallengeService(store ChallengeStore, completer Completer) *ChallengeService {
	return &ChallengeService{store: store, completer: completer}
}

// challengeProposal is the JSON shape requested from the completion
// collaborator.
type challengeProposal struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	TargetUnits float64 `json:"target_amount"`
}

// Generate creates up to three pending challenges from the user's trailing
// 30-day spending. Users with no recent spending get the one-time
// onboarding challenge instead. Completion failures yield no proposals,
// never an error.
func (s *ChallengeService) Generate(ctx context.Context, ownerID int64, now time.Time) ([]core.Challenge, error) {
	since := now.Add(-spendHistoryWindow)

	n, err := s.store.CountExpensesSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("count recent expenses: %w", err)
	}
	if n == 0 {
		return s.seedOnboarding(ctx, ownerID, now)
	}

	totals, err := s.store.SumByCategory(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}

	categories, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	proposals := s.propose(ctx, ownerID, totals, categories)

	created := make([]core.Challenge, 0, len(proposals))
	for _, p := range proposals {
		cat, ok := resolveCategory(p.Category, categories)
		if !ok {
			slog.WarnContext(ctx, "Skipping challenge proposal with unresolvable category",
				"owner_id", ownerID,
				"category", p.Category)
			continue
		}

		pending, err := s.store.HasPendingChallenge(ctx, ownerID, cat.ID)
		if err != nil {
			return created, fmt.Errorf("check pending challenge: %w", err)
		}
		if pending {
			continue
		}

		c := core.Challenge{
			OwnerID:       ownerID,
			Title:         p.Title,
			Description:   p.Description,
			CategoryID:    cat.ID,
			TargetAmount:  core.FromUnits(p.TargetUnits),
			CurrentAmount: core.Money{},
			StartDate:     now,
			EndDate:       now.Add(challengeDuration),
			Status:        core.ChallengePending,
		}
		if err := c.Validate(); err != nil {
			slog.WarnContext(ctx, "Skipping invalid challenge proposal",
				"owner_id", ownerID,
				"title", p.Title,
				"error", err)
			continue
		}

		id, err := s.store.CreateChallenge(ctx, c)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to persist challenge",
				"owner_id", ownerID,
				"title", c.Title,
				"error", err)
			continue
		}
		c.ID = id
		created = append(created, c)
	}

	return created, nil
}

func (s *ChallengeService) seedOnboarding(ctx context.Context, ownerID int64, now time.Time) ([]core.Challenge, error) {
	exists, err := s.store.HasChallengeTitled(ctx, ownerID, onboardingTitle)
	if err != nil {
		return nil, fmt.Errorf("check onboarding challenge: %w", err)
	}
	if exists {
		return nil, nil
	}

	c := core.Challenge{
		OwnerID:      ownerID,
		Title:        onboardingTitle,
		Description:  "Track every expense for one week to build the habit.",
		TargetAmount: core.Money{Cents: onboardingTargetCents},
		StartDate:    now,
		EndDate:      now.Add(challengeDuration),
		Status:       core.ChallengePending,
	}
	id, err := s.store.CreateChallenge(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create onboarding challenge: %w", err)
	}
	c.ID = id

	slog.InfoContext(ctx, "Seeded onboarding challenge", "owner_id", ownerID, "challenge_id", id)
	return []core.Challenge{c}, nil
}

// propose asks the completion collaborator for exactly three challenge
// proposals against the user's top spending categories. Any failure returns
// no proposals.
func (s *ChallengeService) propose(ctx context.Context, ownerID int64, totals []storage.CategoryTotal, categories []core.Category) []challengeProposal {
	if s.completer == nil {
		slog.WarnContext(ctx, "Challenge generation skipped: no completion credential", "owner_id", ownerID)
		return nil
	}

	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	var summary strings.Builder
	listed := 0
	for _, t := range totals {
		name, ok := names[t.CategoryID]
		if !ok {
			continue
		}
		weekly := core.Money{Cents: t.Total.Cents / 4}
		fmt.Fprintf(&summary, "- %s: %s/week on average\n", name, weekly)
		listed++
		if listed == topCategories {
			break
		}
	}
	if listed == 0 {
		return nil
	}

	prompt := fmt.Sprintf(
		"A user's average weekly spending by category over the last 30 days:\n%s\n"+
			"Propose exactly 3 one-week savings challenges. Each targets one of these categories with a "+
			"spending cap between 70%% and 80%% of that category's weekly average. Reply with a JSON array of "+
			"objects with keys: title, description, category, target_amount (a number in the same currency units). "+
			"Reply with JSON only.",
		summary.String())

	var proposals []challengeProposal
	err := s.completer.CompleteJSON(ctx, llm.Request{Prompt: prompt, MaxTokens: 600}, &proposals)
	if err != nil {
		slog.ErrorContext(ctx, "Challenge proposal completion failed",
			"owner_id", ownerID,
			"error", err)
		return nil
	}
	if len(proposals) > 3 {
		proposals = proposals[:3]
	}
	return proposals
}

// CheckProgress recomputes current spend for every active challenge and
// settles the ones past their end date. Completed and failed are terminal.
func (s *ChallengeService) CheckProgress(ctx context.Context, ownerID int64, now time.Time) ([]core.Challenge, error) {
	active, err := s.store.ListChallenges(ctx, ownerID, core.ChallengeActive)
	if err != nil {
		return nil, fmt.Errorf("list active challenges: %w", err)
	}

	updated := make([]core.Challenge, 0, len(active))
	for _, c := range active {
		spent, err := s.store.SumExpenses(ctx, ownerID, c.CategoryID, c.StartDate, core.TypeExpense)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to sum challenge spend",
				"challenge_id", c.ID,
				"error", err)
			continue
		}
		c.CurrentAmount = spent

		if now.After(c.EndDate) {
			if c.CurrentAmount.Cents <= c.TargetAmount.Cents {
				c.Status = core.ChallengeCompleted
			} else {
				c.Status = core.ChallengeFailed
			}
			slog.InfoContext(ctx, "Challenge settled",
				"challenge_id", c.ID,
				"status", c.Status,
				"current_cents", c.CurrentAmount.Cents,
				"target_cents", c.TargetAmount.Cents)
		}

		if err := s.store.UpdateChallenge(ctx, c); err != nil {
			slog.ErrorContext(ctx, "Failed to update challenge progress",
				"challenge_id", c.ID,
				"error", err)
			continue
		}
		updated = append(updated, c)
	}

	return updated, nil
}

// Accept moves a pending challenge to active and restarts its clock.
func (s *ChallengeService) Accept(ctx context.Context, ownerID, id int64, now time.Time) (*core.Challenge, error) {
	c, err := s.store.GetChallenge(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != core.ChallengePending {
		return nil, ErrChallengeNotPending
	}

	c.Status = core.ChallengeActive
	c.StartDate = now
	if err := s.store.UpdateChallenge(ctx, *c); err != nil {
		return nil, fmt.Errorf("activate challenge: %w", err)
	}

	slog.InfoContext(ctx, "Challenge accepted", "owner_id", ownerID, "challenge_id", id)
	return c, nil
}
