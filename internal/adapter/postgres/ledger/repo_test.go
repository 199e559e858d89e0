package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/finwell/finwell-backend/internal/domain"
)

func newMockRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return New(mock), mock
}

func expectTotals(mock pgxmock.PgxPoolIface, income, expense float64, txCount int, currency string) {
	rows := pgxmock.NewRows([]string{"total_income", "total_expense", "tx_count", "currency"}).
		AddRow(income, expense, txCount, currency)
	mock.ExpectQuery(`SUM\(amount\) FILTER`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)
}

func TestMonthSnapshot(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	expectTotals(mock, 5000, 4400, 87, "USD")

	mock.ExpectQuery(`GROUP BY category`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category", "total"}).
			AddRow("groceries", 1800.0).
			AddRow("transport", 700.0))

	mock.ExpectQuery(`FROM budgets`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category", "month_limit"}).
			AddRow("groceries", 1500.0))

	mock.ExpectQuery(`FROM recurring_rules`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"name", "amount", "interval"}).
			AddRow("rent", 1500.0, "monthly"))

	snap, err := repo.MonthSnapshot(context.Background(), userID, "2025-06")
	if err != nil {
		t.Fatalf("MonthSnapshot() error: %v", err)
	}

	if snap.Month != "2025-06" || snap.Currency != "USD" || snap.TxCount != 87 {
		t.Errorf("unexpected snapshot header: %+v", snap)
	}
	if snap.Net != 600 {
		t.Errorf("Net = %v, want 600", snap.Net)
	}
	if snap.SavingsRate != 0.12 {
		t.Errorf("SavingsRate = %v, want 0.12", snap.SavingsRate)
	}

	if len(snap.TopCategories) != 2 {
		t.Fatalf("expected 2 top categories, got %d", len(snap.TopCategories))
	}
	top := snap.TopCategories[0]
	if top.Category != "groceries" || top.Amount != 1800 {
		t.Errorf("unexpected top category: %+v", top)
	}
	if wantShare := 1800.0 / 4400.0; top.Share != wantShare {
		t.Errorf("Share = %v, want %v", top.Share, wantShare)
	}

	if len(snap.Budgets) != 1 {
		t.Fatalf("expected 1 budget, got %d", len(snap.Budgets))
	}
	b := snap.Budgets[0]
	if b.Spent != 1800 || b.Limit != 1500 || b.Ratio != 1.2 {
		t.Errorf("unexpected budget usage: %+v", b)
	}

	if len(snap.RecurringRules) != 1 || snap.RecurringRules[0].Name != "rent" {
		t.Errorf("unexpected recurring rules: %+v", snap.RecurringRules)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMonthSnapshot_EmptyMonth(t *testing.T) {
	repo, mock := newMockRepo(t)

	expectTotals(mock, 0, 0, 0, "")
	mock.ExpectQuery(`GROUP BY category`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category", "total"}))
	mock.ExpectQuery(`FROM budgets`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category", "month_limit"}))
	mock.ExpectQuery(`FROM recurring_rules`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"name", "amount", "interval"}))

	snap, err := repo.MonthSnapshot(context.Background(), uuid.New(), "2025-06")
	if err != nil {
		t.Fatalf("MonthSnapshot() error: %v", err)
	}

	if snap.TxCount != 0 || snap.SavingsRate != 0 {
		t.Errorf("expected zero-valued snapshot, got %+v", snap)
	}
	if len(snap.TopCategories) != 0 || len(snap.Budgets) != 0 {
		t.Errorf("expected no categories or budgets, got %+v", snap)
	}
}

func TestMonthSnapshot_BudgetWithoutSpend(t *testing.T) {
	repo, mock := newMockRepo(t)

	expectTotals(mock, 5000, 0, 3, "EUR")
	mock.ExpectQuery(`GROUP BY category`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category", "total"}))
	mock.ExpectQuery(`FROM budgets`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"category", "month_limit"}).
			AddRow("dining", 200.0))
	mock.ExpectQuery(`FROM recurring_rules`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"name", "amount", "interval"}))

	snap, err := repo.MonthSnapshot(context.Background(), uuid.New(), "2025-06")
	if err != nil {
		t.Fatalf("MonthSnapshot() error: %v", err)
	}

	if len(snap.Budgets) != 1 {
		t.Fatalf("expected 1 budget, got %d", len(snap.Budgets))
	}
	if b := snap.Budgets[0]; b.Spent != 0 || b.Ratio != 0 {
		t.Errorf("budget with no spend should be zeroed: %+v", b)
	}
}

func TestMonthSnapshot_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SUM\(amount\) FILTER`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.MonthSnapshot(context.Background(), uuid.New(), "2025-06")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestMapError(t *testing.T) {
	id := uuid.New()

	if got := mapError(nil, "month totals", id); got != nil {
		t.Errorf("mapError(nil) = %v, want nil", got)
	}

	got := mapError(pgx.ErrNoRows, "month totals", id)
	if !errors.Is(got, domain.ErrNotFound) {
		t.Errorf("mapError(ErrNoRows) does not wrap domain.ErrNotFound: %v", got)
	}
	if want := fmt.Sprintf("month totals for user %s: not found", id); got.Error() != want {
		t.Errorf("mapError(ErrNoRows).Error() = %q, want %q", got.Error(), want)
	}

	got = mapError(&pgconn.PgError{Code: "23505"}, "budgets", id)
	if !errors.Is(got, domain.ErrAlreadyExists) {
		t.Errorf("mapError(23505) does not wrap domain.ErrAlreadyExists: %v", got)
	}

	got = mapError(&pgconn.PgError{Code: "23514"}, "budgets", id)
	if !errors.Is(got, domain.ErrValidation) {
		t.Errorf("mapError(23514) does not wrap domain.ErrValidation: %v", got)
	}

	got = mapError(context.Canceled, "budgets", id)
	if !errors.Is(got, context.Canceled) {
		t.Errorf("mapError(context.Canceled) must pass through: %v", got)
	}

	plain := errors.New("something unexpected")
	got = mapError(plain, "budgets", id)
	if !errors.Is(got, plain) {
		t.Errorf("mapError(plain) must wrap the original error: %v", got)
	}
}
