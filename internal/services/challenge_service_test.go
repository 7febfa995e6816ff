package services

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"
)

func challengeFixture() *fakeStore {
	store := newFakeStore()
	store.categories = []core.Category{
		{ID: 1, OwnerID: 1, Name: "Food"},
		{ID: 2, OwnerID: 1, Name: "Transport"},
		{ID: 3, OwnerID: 1, Name: "Uncategorized"},
	}
	return store
}

func proposalsJSON() string {
	return `[
		{"title":"Eat in","description":"Cook at home","category":"Food","target_amount":70},
		{"title":"Bike more","description":"Skip rideshares","category":"transport","target_amount":40},
		{"title":"Misc trim","description":"Cut impulse buys","category":"Shopping","target_amount":20}
	]`
}

func TestGenerate_NoHistorySeedsOnboarding(t *testing.T) {
	store := challengeFixture()
	s := NewChallengeService(store, &fakeCompleter{response: proposalsJSON()})
	now := date(2024, 3, 1)

	created, err := s.Generate(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d, want 1", len(created))
	}
	c := created[0]
	if c.Title != "First Step" {
		t.Errorf("title = %q, want First Step", c.Title)
	}
	if c.Status != core.ChallengePending {
		t.Errorf("status = %q, want pending", c.Status)
	}
	if c.TargetAmount.Cents != 10000 {
		t.Errorf("target = %d, want 10000", c.TargetAmount.Cents)
	}
	if !c.EndDate.Equal(now.AddDate(0, 0, 7)) {
		t.Errorf("end date = %v, want now+7d", c.EndDate)
	}

	// No completion call for the onboarding path.
	if got := s.completer.(*fakeCompleter); len(got.prompts) != 0 {
		t.Errorf("completion calls = %d, want 0", len(got.prompts))
	}

	// A second call does not seed again.
	created, err = s.Generate(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("second call created = %d, want 0", len(created))
	}
}

func TestGenerate_ProposalsFromSpending(t *testing.T) {
	store := challengeFixture()
	store.expenses = []core.Expense{
		{ID: 90, OwnerID: 1, Title: "food", Amount: core.Money{Cents: 40000}, CategoryID: 1, Type: core.TypeExpense, Date: date(2024, 2, 20)},
		{ID: 91, OwnerID: 1, Title: "bus", Amount: core.Money{Cents: 20000}, CategoryID: 2, Type: core.TypeExpense, Date: date(2024, 2, 25)},
	}

	s := NewChallengeService(store, &fakeCompleter{response: proposalsJSON()})
	created, err := s.Generate(context.Background(), 1, date(2024, 3, 1))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// "Food" exact, "transport" case-insensitive exact, "Shopping" resolves
	// to the Uncategorized fallback.
	if len(created) != 3 {
		t.Fatalf("created = %d, want 3", len(created))
	}
	if created[0].CategoryID != 1 || created[1].CategoryID != 2 || created[2].CategoryID != 3 {
		t.Errorf("resolved categories = %d,%d,%d, want 1,2,3",
			created[0].CategoryID, created[1].CategoryID, created[2].CategoryID)
	}
	for _, c := range created {
		if c.Status != core.ChallengePending {
			t.Errorf("status = %q, want pending", c.Status)
		}
		if c.CurrentAmount.Cents != 0 {
			t.Errorf("current = %d, want 0", c.CurrentAmount.Cents)
		}
	}
	if created[0].TargetAmount.Cents != 7000 {
		t.Errorf("target = %d, want 7000 (70 units)", created[0].TargetAmount.Cents)
	}
}

func TestGenerate_SkipsPendingCategory(t *testing.T) {
	store := challengeFixture()
	store.expenses = []core.Expense{
		{ID: 90, OwnerID: 1, Title: "food", Amount: core.Money{Cents: 40000}, CategoryID: 1, Type: core.TypeExpense, Date: date(2024, 2, 20)},
	}
	store.challenges = []core.Challenge{{
		ID: 50, OwnerID: 1, Title: "Existing", CategoryID: 1,
		TargetAmount: core.Money{Cents: 1000},
		StartDate:    date(2024, 2, 1), EndDate: date(2024, 2, 8),
		Status: core.ChallengePending,
	}}

	s := NewChallengeService(store, &fakeCompleter{
		response: `[{"title":"Eat in","description":"d","category":"Food","target_amount":70}]`,
	})
	created, err := s.Generate(context.Background(), 1, date(2024, 3, 1))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created = %d, want 0 (category already has a pending challenge)", len(created))
	}
}

func TestGenerate_CompletionFailureYieldsNothing(t *testing.T) {
	store := challengeFixture()
	store.expenses = []core.Expense{
		{ID: 90, OwnerID: 1, Title: "food", Amount: core.Money{Cents: 40000}, CategoryID: 1, Type: core.TypeExpense, Date: date(2024, 2, 20)},
	}

	s := NewChallengeService(store, &fakeCompleter{err: errors.New("upstream down")})
	created, err := s.Generate(context.Background(), 1, date(2024, 3, 1))
	if err != nil {
		t.Fatalf("Generate() error = %v, want nil on completion failure", err)
	}
	if len(created) != 0 {
		t.Errorf("created = %d, want 0", len(created))
	}
}

func TestAccept(t *testing.T) {
	store := challengeFixture()
	store.challenges = []core.Challenge{{
		ID: 5, OwnerID: 1, Title: "Eat in", CategoryID: 1,
		TargetAmount: core.Money{Cents: 7000},
		StartDate:    date(2024, 3, 1), EndDate: date(2024, 3, 8),
		Status: core.ChallengePending,
	}}

	s := NewChallengeService(store, nil)
	now := date(2024, 3, 3)

	got, err := s.Accept(context.Background(), 1, 5, now)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if got.Status != core.ChallengeActive {
		t.Errorf("status = %q, want active", got.Status)
	}
	if !got.StartDate.Equal(now) {
		t.Errorf("start date = %v, want now", got.StartDate)
	}

	// Accepting again fails: the challenge already left pending.
	if _, err := s.Accept(context.Background(), 1, 5, now); !errors.Is(err, ErrChallengeNotPending) {
		t.Errorf("second Accept() error = %v, want ErrChallengeNotPending", err)
	}
}

func TestCheckProgress(t *testing.T) {
	store := challengeFixture()
	store.challenges = []core.Challenge{{
		ID: 5, OwnerID: 1, Title: "Eat in", CategoryID: 1,
		TargetAmount: core.Money{Cents: 7000},
		StartDate:    date(2024, 3, 1), EndDate: date(2024, 3, 8),
		Status: core.ChallengeActive,
	}}
	store.expenses = []core.Expense{
		// Before the challenge started; must not count.
		{ID: 1, OwnerID: 1, Title: "old", Amount: core.Money{Cents: 9000}, CategoryID: 1, Type: core.TypeExpense, Date: date(2024, 2, 20)},
		{ID: 2, OwnerID: 1, Title: "groceries", Amount: core.Money{Cents: 3000}, CategoryID: 1, Type: core.TypeExpense, Date: date(2024, 3, 2)},
	}

	s := NewChallengeService(store, nil)

	// Mid-window: progress updates, status stays active.
	updated, err := s.CheckProgress(context.Background(), 1, date(2024, 3, 5))
	if err != nil {
		t.Fatalf("CheckProgress() error = %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("updated = %d, want 1", len(updated))
	}
	if updated[0].CurrentAmount.Cents != 3000 {
		t.Errorf("current = %d, want 3000", updated[0].CurrentAmount.Cents)
	}
	if updated[0].Status != core.ChallengeActive {
		t.Errorf("status = %q, want active", updated[0].Status)
	}

	// Past the end date and under target: completed.
	updated, err = s.CheckProgress(context.Background(), 1, date(2024, 3, 9))
	if err != nil {
		t.Fatalf("CheckProgress() error = %v", err)
	}
	if updated[0].Status != core.ChallengeCompleted {
		t.Errorf("status = %q, want completed", updated[0].Status)
	}

	// Terminal: later spending in the category changes nothing.
	store.expenses = append(store.expenses, core.Expense{
		ID: 3, OwnerID: 1, Title: "feast", Amount: core.Money{Cents: 90000},
		CategoryID: 1, Type: core.TypeExpense, Date: date(2024, 3, 10),
	})
	updated, err = s.CheckProgress(context.Background(), 1, date(2024, 3, 11))
	if err != nil {
		t.Fatalf("CheckProgress() error = %v", err)
	}
	if len(updated) != 0 {
		t.Errorf("updated = %d, want 0 (no active challenges remain)", len(updated))
	}
	if store.challenges[0].Status != core.ChallengeCompleted {
		t.Errorf("status = %q, want completed to stay terminal", store.challenges[0].Status)
	}
}

func TestCheckProgress_OverTargetFails(t *testing.T) {
	store := challengeFixture()
	store.challenges = []core.Challenge{{
		ID: 5, OwnerID: 1, Title: "Eat in", CategoryID: 1,
		TargetAmount: core.Money{Cents: 7000},
		StartDate:    date(2024, 3, 1), EndDate: date(2024, 3, 8),
		Status: core.ChallengeActive,
	}}
	store.expenses = []core.Expense{
		{ID: 1, OwnerID: 1, Title: "a", Amount: core.Money{Cents: 8000}, CategoryID: 1, Type: core.TypeExpense, Date: date(2024, 3, 2)},
	}

	s := NewChallengeService(store, nil)
	updated, err := s.CheckProgress(context.Background(), 1, date(2024, 3, 9))
	if err != nil {
		t.Fatalf("CheckProgress() error = %v", err)
	}
	if updated[0].Status != core.ChallengeFailed {
		t.Errorf("status = %q, want failed", updated[0].Status)
	}
}

func TestResolveCategory(t *testing.T) {
	categories := []core.Category{
		{ID: 1, Name: "Food"},
		{ID: 2, Name: "Public Transport"},
		{ID: 3, Name: "Uncategorized"},
	}

	tests := []struct {
		name   string
		in     string
		wantID int64
		wantOK bool
	}{
		{"exact", "Food", 1, true},
		{"exact case-insensitive", "fOOd", 1, true},
		{"substring of user category", "Transport", 2, true},
		{"user category inside proposal", "Food delivery", 1, true},
		{"fallback to Uncategorized", "Entertainment", 3, true},
		{"empty falls back", "  ", 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveCategory(tt.in, categories)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Errorf("resolveCategory(%q) = id %d, %v; want id %d, %v", tt.in, got.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}

	t.Run("no fallback means skip", func(t *testing.T) {
		_, ok := resolveCategory("Entertainment", categories[:2])
		if ok {
			t.Error("resolveCategory should fail without an Uncategorized category")
		}
	})
}
