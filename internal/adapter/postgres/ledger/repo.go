// Package ledger reads a user's financial activity from PostgreSQL and
// assembles the month snapshot the advisor reasons about.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	postgres "github.com/finwell/finwell-backend/internal/adapter/postgres"
	"github.com/finwell/finwell-backend/internal/domain"
)

// topCategoryLimit caps how many expense categories the snapshot carries.
const topCategoryLimit = 5

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Repo provides read access to the ledger tables.
type Repo struct {
	db postgres.Querier
}

// New creates a ledger repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// ---------------------------------------------------------------------------
// Raw SQL for aggregate queries
// ---------------------------------------------------------------------------

const monthTotalsSQL = `
SELECT
    COALESCE(SUM(amount) FILTER (WHERE kind = 'income'), 0)  AS total_income,
    COALESCE(SUM(amount) FILTER (WHERE kind = 'expense'), 0) AS total_expense,
    COUNT(*)                                                 AS tx_count,
    COALESCE(MAX(currency), '')                              AS currency
FROM transactions
WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3`

const categorySpendSQL = `
SELECT category, SUM(amount) AS total
FROM transactions
WHERE user_id = $1 AND kind = 'expense' AND occurred_at >= $2 AND occurred_at < $3
GROUP BY category
ORDER BY total DESC, category`

// MonthSnapshot aggregates the user's activity for the month: totals,
// per-category spending, budget usage and recurring obligations. Months with
// no activity produce an empty snapshot, not an error.
func (r *Repo) MonthSnapshot(ctx context.Context, userID uuid.UUID, month domain.Month) (domain.MonthSnapshot, error) {
	start, end := month.Bounds()
	snap := domain.MonthSnapshot{Month: month}

	row := r.db.QueryRow(ctx, monthTotalsSQL, userID, start, end)
	if err := row.Scan(&snap.TotalIncome, &snap.TotalExpense, &snap.TxCount, &snap.Currency); err != nil {
		return snap, mapError(err, "month totals", userID)
	}
	snap.Net = snap.TotalIncome - snap.TotalExpense
	if snap.TotalIncome > 0 {
		snap.SavingsRate = snap.Net / snap.TotalIncome
	}

	spendByCategory, err := r.categorySpend(ctx, userID, start, end)
	if err != nil {
		return snap, err
	}
	for i, c := range spendByCategory {
		if i >= topCategoryLimit {
			break
		}
		if snap.TotalExpense > 0 {
			c.Share = c.Amount / snap.TotalExpense
		}
		snap.TopCategories = append(snap.TopCategories, c)
	}

	snap.Budgets, err = r.budgetUsage(ctx, userID, spendByCategory)
	if err != nil {
		return snap, err
	}

	snap.RecurringRules, err = r.recurringRules(ctx, userID)
	if err != nil {
		return snap, err
	}

	return snap, nil
}

// categorySpend returns per-category expense totals, highest first.
func (r *Repo) categorySpend(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]domain.CategorySpend, error) {
	rows, err := r.db.Query(ctx, categorySpendSQL, userID, start, end)
	if err != nil {
		return nil, mapError(err, "category spend", userID)
	}
	defer rows.Close()

	var out []domain.CategorySpend
	for rows.Next() {
		var c domain.CategorySpend
		if err := rows.Scan(&c.Category, &c.Amount); err != nil {
			return nil, mapError(err, "category spend", userID)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "category spend", userID)
	}
	return out, nil
}

// budgetUsage joins the user's configured budgets with actual spending.
func (r *Repo) budgetUsage(ctx context.Context, userID uuid.UUID, spend []domain.CategorySpend) ([]domain.BudgetUsage, error) {
	spent := make(map[string]float64, len(spend))
	for _, c := range spend {
		spent[c.Category] = c.Amount
	}

	sql, args, err := psql.
		Select("category", "month_limit").
		From("budgets").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build budgets query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "budgets", userID)
	}
	defer rows.Close()

	var out []domain.BudgetUsage
	for rows.Next() {
		var b domain.BudgetUsage
		if err := rows.Scan(&b.Category, &b.Limit); err != nil {
			return nil, mapError(err, "budgets", userID)
		}
		b.Spent = spent[b.Category]
		if b.Limit > 0 {
			b.Ratio = b.Spent / b.Limit
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "budgets", userID)
	}
	return out, nil
}

// recurringRules returns the user's recurring obligations ordered by name.
func (r *Repo) recurringRules(ctx context.Context, userID uuid.UUID) ([]domain.RecurringRule, error) {
	sql, args, err := psql.
		Select("name", "amount", "interval").
		From("recurring_rules").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recurring rules query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "recurring rules", userID)
	}
	defer rows.Close()

	var out []domain.RecurringRule
	for rows.Next() {
		var rule domain.RecurringRule
		if err := rows.Scan(&rule.Name, &rule.Amount, &rule.Interval); err != nil {
			return nil, mapError(err, "recurring rules", userID)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "recurring rules", userID)
	}
	return out, nil
}

// mapError converts pgx/pgconn errors into domain errors.
// Context errors pass through unmapped.
func mapError(err error, op string, userID uuid.UUID) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s for user %s: %w", op, userID, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s for user %s: %w", op, userID, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s for user %s: %w", op, userID, domain.ErrAlreadyExists)
		case "23514": // check_violation
			return fmt.Errorf("%s for user %s: %w", op, userID, domain.ErrValidation)
		}
	}

	return fmt.Errorf("%s for user %s: %w", op, userID, err)
}
