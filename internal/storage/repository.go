package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateSchema(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection, for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// nullID maps a zero id to SQL NULL for nullable foreign keys.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

// --- Users & sessions ---

type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, email, fullName, passwordHash string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, full_name, password_hash) VALUES (?, ?, ?)`,
		email, fullName, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, password_hash, created_at FROM users WHERE email = ?`,
		email).Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// ListOwnerIDs returns the ids of every registered user, for batch jobs
// that sweep all accounts.
func (r *SQLiteRepository) ListOwnerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list owner ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSessionUser resolves a session token to its user id. Expired sessions
// are treated as missing.
func (r *SQLiteRepository) GetSessionUser(ctx context.Context, token string, now time.Time) (int64, error) {
	var userID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE token = ? AND expires_at > ?`,
		token, now).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get session: %w", err)
	}
	return userID, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// --- Categories ---

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name, color) VALUES (?, ?, ?)`,
		c.OwnerID, c.Name, c.Color)
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, color, created_at FROM categories WHERE user_id = ? ORDER BY name`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, id int64) (*core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, color, created_at FROM categories WHERE id = ? AND user_id = ?`,
		id, ownerID).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Color, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Expenses ---

// ExpenseFilter narrows ListExpenses. Zero values mean "no constraint".
type ExpenseFilter struct {
	CategoryID int64
	Search     string // substring match on title
	StartDate  time.Time
	EndDate    time.Time
	MinCents   int64
	MaxCents   int64
	Type       core.EntryType
	Limit      int
	Offset     int
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, title, amount_cents, category_id, type, date) VALUES (?, ?, ?, ?, ?, ?)`,
		e.OwnerID, e.Title, e.Amount.Cents, nullID(e.CategoryID), string(e.Type), e.Date)
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", id,
		"owner_id", e.OwnerID,
		"title", e.Title,
		"amount_cents", e.Amount.Cents,
		"type", e.Type)

	return id, nil
}

func scanExpense(rows interface{ Scan(...any) error }) (core.Expense, error) {
	var e core.Expense
	var cat sql.NullInt64
	var typ string
	err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Amount.Cents, &cat, &typ, &e.Date, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	e.CategoryID = cat.Int64
	e.Type = core.EntryType(typ)
	return e, nil
}

const expenseColumns = `id, user_id, title, amount_cents, category_id, type, date, created_at`

func (r *SQLiteRepository) GetExpense(ctx context.Context, ownerID, id int64) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, ownerID)
	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return &e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID int64, f ExpenseFilter) ([]core.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE user_id = ?`
	args := []any{ownerID}

	if f.CategoryID > 0 {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Search != "" {
		query += ` AND title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	if !f.StartDate.IsZero() {
		query += ` AND date >= ?`
		args = append(args, f.StartDate)
	}
	if !f.EndDate.IsZero() {
		query += ` AND date <= ?`
		args = append(args, f.EndDate)
	}
	if f.MinCents > 0 {
		query += ` AND amount_cents >= ?`
		args = append(args, f.MinCents)
	}
	if f.MaxCents > 0 {
		query += ` AND amount_cents <= ?`
		args = append(args, f.MaxCents)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}

	query += ` ORDER BY date DESC, id DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET title = ?, amount_cents = ?, category_id = ?, type = ?, date = ? WHERE id = ? AND user_id = ?`,
		e.Title, e.Amount.Cents, nullID(e.CategoryID), string(e.Type), e.Date, e.ID, e.OwnerID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SumExpenses aggregates amounts for one owner, optionally narrowed by
// category, since a given instant. Only rows of the given type count.
func (r *SQLiteRepository) SumExpenses(ctx context.Context, ownerID, categoryID int64, since time.Time, typ core.EntryType) (core.Money, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE user_id = ? AND type = ? AND date >= ?`
	args := []any{ownerID, string(typ), since}
	if categoryID > 0 {
		query += ` AND category_id = ?`
		args = append(args, categoryID)
	}

	var cents int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&cents); err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// SumExpensesBetween aggregates amounts in [start, end).
func (r *SQLiteRepository) SumExpensesBetween(ctx context.Context, ownerID int64, start, end time.Time, typ core.EntryType) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE user_id = ? AND type = ? AND date >= ? AND date < ?`,
		ownerID, string(typ), start, end).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses between: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// CategoryTotal is a per-category aggregate over a date window.
type CategoryTotal struct {
	CategoryID int64
	Total      core.Money
}

// SumByCategory returns per-category expense totals since a given instant,
// highest first. Uncategorized rows aggregate under category id 0.
func (r *SQLiteRepository) SumByCategory(ctx context.Context, ownerID int64, since time.Time) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(category_id, 0), COALESCE(SUM(amount_cents), 0) AS total
		 FROM expenses
		 WHERE user_id = ? AND type = 'expense' AND date >= ?
		 GROUP BY COALESCE(category_id, 0)
		 ORDER BY total DESC`,
		ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.CategoryID, &ct.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// DayTotal is a per-day expense aggregate. Day is YYYY-MM-DD.
type DayTotal struct {
	Day   string
	Total core.Money
}

// SumByDay returns daily expense totals since a given instant, oldest first.
// Days without spending produce no row.
func (r *SQLiteRepository) SumByDay(ctx context.Context, ownerID int64, since time.Time) ([]DayTotal, error) {
	// Dates are stored as text beginning with YYYY-MM-DD regardless of the
	// driver's time layout, so the prefix is the calendar day.
	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(date, 1, 10) AS day, COALESCE(SUM(amount_cents), 0)
		 FROM expenses
		 WHERE user_id = ? AND type = 'expense' AND date >= ?
		 GROUP BY day
		 ORDER BY day`,
		ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("sum by day: %w", err)
	}
	defer rows.Close()

	var out []DayTotal
	for rows.Next() {
		var dt DayTotal
		if err := rows.Scan(&dt.Day, &dt.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan day total: %w", err)
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}

// CountExpensesSince counts expense rows (any type) on or after the cutoff.
func (r *SQLiteRepository) CountExpensesSince(ctx context.Context, ownerID int64, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE user_id = ? AND date >= ?`,
		ownerID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return n, nil
}

// ListUncategorized returns up to limit expenses without a category.
func (r *SQLiteRepository) ListUncategorized(ctx context.Context, ownerID int64, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND category_id IS NULL ORDER BY date DESC LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list uncategorized: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetExpenseCategory assigns a category to one expense.
func (r *SQLiteRepository) SetExpenseCategory(ctx context.Context, ownerID, expenseID, categoryID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET category_id = ? WHERE id = ? AND user_id = ?`,
		nullID(categoryID), expenseID, ownerID)
	if err != nil {
		return fmt.Errorf("set expense category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Budgets ---

// UpsertBudget creates or replaces the single budget for (owner, category).
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) (int64, error) {
	period := b.Period
	if period == "" {
		period = "monthly"
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (user_id, category_id, amount_cents, period) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, category_id) DO UPDATE SET amount_cents = excluded.amount_cents, period = excluded.period`,
		b.OwnerID, b.CategoryID, b.Amount.Cents, period)
	if err != nil {
		return 0, fmt.Errorf("upsert budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		// Updated an existing row; fetch its id.
		if qerr := r.db.QueryRowContext(ctx,
			`SELECT id FROM budgets WHERE user_id = ? AND category_id = ?`,
			b.OwnerID, b.CategoryID).Scan(&id); qerr != nil {
			return 0, fmt.Errorf("budget id: %w", qerr)
		}
	}
	return id, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, ownerID int64) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, category_id, amount_cents, period, created_at FROM budgets WHERE user_id = ? ORDER BY id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.CategoryID, &b.Amount.Cents, &b.Period, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Recurring templates ---

const templateColumns = `id, user_id, title, amount_cents, category_id, frequency, next_due_date, is_active, last_generated_at, created_at`

func scanTemplate(rows interface{ Scan(...any) error }) (core.RecurringTemplate, error) {
	var t core.RecurringTemplate
	var cat sql.NullInt64
	var freq string
	var lastGen sql.NullTime
	err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Amount.Cents, &cat, &freq,
		&t.NextDueDate, &t.IsActive, &lastGen, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	t.CategoryID = cat.Int64
	t.Frequency = core.Frequency(freq)
	if lastGen.Valid {
		t.LastGeneratedAt = lastGen.Time
	}
	return t, nil
}

func (r *SQLiteRepository) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_templates (user_id, title, amount_cents, category_id, frequency, next_due_date, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.OwnerID, t.Title, t.Amount.Cents, nullID(t.CategoryID), string(t.Frequency), t.NextDueDate, t.IsActive)
	if err != nil {
		return 0, fmt.Errorf("create template: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context, ownerID int64) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE user_id = ? ORDER BY next_due_date`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListDueTemplates returns active templates with next_due_date <= now.
func (r *SQLiteRepository) ListDueTemplates(ctx context.Context, ownerID int64, now time.Time) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates
		 WHERE user_id = ? AND is_active = 1 AND next_due_date <= ?
		 ORDER BY next_due_date`,
		ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("list due templates: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AdvanceTemplate records one materialization: moves the due date forward and
// stamps last_generated_at.
func (r *SQLiteRepository) AdvanceTemplate(ctx context.Context, ownerID, id int64, nextDue, generatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_templates SET next_due_date = ?, last_generated_at = ? WHERE id = ? AND user_id = ?`,
		nextDue, generatedAt, id, ownerID)
	if err != nil {
		return fmt.Errorf("advance template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetTemplateActive(ctx context.Context, ownerID, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_templates SET is_active = ? WHERE id = ? AND user_id = ?`,
		active, id, ownerID)
	if err != nil {
		return fmt.Errorf("set template active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurring_templates WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Challenges ---

const challengeColumns = `id, user_id, title, description, category_id, target_cents, current_cents, start_date, end_date, status, created_at`

func scanChallenge(rows interface{ Scan(...any) error }) (core.Challenge, error) {
	var c core.Challenge
	var cat sql.NullInt64
	var status string
	err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Description, &cat,
		&c.TargetAmount.Cents, &c.CurrentAmount.Cents, &c.StartDate, &c.EndDate, &status, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	c.CategoryID = cat.Int64
	c.Status = core.ChallengeStatus(status)
	return c, nil
}

func (r *SQLiteRepository) CreateChallenge(ctx context.Context, c core.Challenge) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO challenges (user_id, title, description, category_id, target_cents, current_cents, start_date, end_date, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.OwnerID, c.Title, c.Description, nullID(c.CategoryID),
		c.TargetAmount.Cents, c.CurrentAmount.Cents, c.StartDate, c.EndDate, string(c.Status))
	if err != nil {
		return 0, fmt.Errorf("create challenge: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetChallenge(ctx context.Context, ownerID, id int64) (*core.Challenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = ? AND user_id = ?`, id, ownerID)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return &c, nil
}

// ListChallenges returns all challenges for the owner; status narrows when
// non-empty.
func (r *SQLiteRepository) ListChallenges(ctx context.Context, ownerID int64, status core.ChallengeStatus) ([]core.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE user_id = ?`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var out []core.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HasPendingChallenge reports whether the owner already has a pending
// challenge for the category.
func (r *SQLiteRepository) HasPendingChallenge(ctx context.Context, ownerID, categoryID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenges WHERE user_id = ? AND status = 'pending' AND category_id = ?`,
		ownerID, categoryID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has pending challenge: %w", err)
	}
	return n > 0, nil
}

// HasChallengeTitled reports whether any challenge with this title exists,
// in any status. Used to seed the onboarding challenge only once.
func (r *SQLiteRepository) HasChallengeTitled(ctx context.Context, ownerID int64, title string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenges WHERE user_id = ? AND title = ?`,
		ownerID, title).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has challenge titled: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) UpdateChallenge(ctx context.Context, c core.Challenge) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE challenges SET current_cents = ?, status = ?, start_date = ? WHERE id = ? AND user_id = ?`,
		c.CurrentAmount.Cents, string(c.Status), c.StartDate, c.ID, c.OwnerID)
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteChallenge(ctx context.Context, ownerID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM challenges WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Advice cache ---

func (r *SQLiteRepository) InsertAdvice(ctx context.Context, e core.AdviceEntry) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO advice_cache (user_id, kind, key, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.OwnerID, e.Kind, e.Key, e.Value, e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert advice: %w", err)
	}
	return res.LastInsertId()
}

// GetFreshAdvice returns the newest advice value for (owner, kind, key)
// created on or after the cutoff. Stale entries are ignored, not deleted.
func (r *SQLiteRepository) GetFreshAdvice(ctx context.Context, ownerID int64, kind, key string, cutoff time.Time) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM advice_cache
		 WHERE user_id = ? AND kind = ? AND key = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		ownerID, kind, key, cutoff).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get fresh advice: %w", err)
	}
	return value, nil
}

// --- Suggestions ---

func (r *SQLiteRepository) InsertSuggestion(ctx context.Context, ownerID int64, content string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO suggestions (user_id, content) VALUES (?, ?)`, ownerID, content)
	if err != nil {
		return 0, fmt.Errorf("insert suggestion: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) ListSuggestions(ctx context.Context, ownerID int64, limit int) ([]core.Suggestion, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, content, created_at FROM suggestions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var out []core.Suggestion
	for rows.Next() {
		var s core.Suggestion
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Content, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- Monthly reports ---

func (r *SQLiteRepository) UpsertMonthlyReport(ctx context.Context, rep core.MonthlyReport) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO monthly_reports (user_id, month, total_spent_cents, total_income_cents, savings_rate, analysis)
	 VALUES (?, ?, ?, ?, ?, ?)
	 ON CONFLICT (user_id, month) DO UPDATE SET
	   total_spent_cents = excluded.total_spent_cents,
	   total_income_cents = excluded.total_income_cents,
	   savings_rate = excluded.savings_rate,
	   analysis = excluded.analysis`,
		rep.OwnerID, rep.Month, rep.TotalSpent.Cents, rep.TotalIncome.Cents, rep.SavingsRate, rep.Analysis)
	if err != nil {
		return 0, fmt.Errorf("upsert monthly report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		if qerr := r.db.QueryRowContext(ctx,
			`SELECT id FROM monthly_reports WHERE user_id = ? AND month = ?`,
			rep.OwnerID, rep.Month).Scan(&id); qerr != nil {
			return 0, fmt.Errorf("monthly report id: %w", qerr)
		}
	}
	return id, nil
}

func (r *SQLiteRepository) GetMonthlyReport(ctx context.Context, ownerID int64, month string) (*core.MonthlyReport, error) {
	var rep core.MonthlyReport
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, month, total_spent_cents, total_income_cents, savings_rate, analysis, created_at
		 FROM monthly_reports WHERE user_id = ? AND month = ?`,
		ownerID, month).Scan(&rep.ID, &rep.OwnerID, &rep.Month, &rep.TotalSpent.Cents,
		&rep.TotalIncome.Cents, &rep.SavingsRate, &rep.Analysis, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monthly report: %w", err)
	}
	return &rep, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
