package domain

// CategorySpend is one expense category's total for the month.
type CategorySpend struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Share    float64 `json:"share"` // fraction of total expenses, 0..1
}

// BudgetUsage compares a category budget against actual spend.
type BudgetUsage struct {
	Category string  `json:"category"`
	Limit    float64 `json:"limit"`
	Spent    float64 `json:"spent"`
	Ratio    float64 `json:"ratio"` // Spent / Limit, >1 means over budget
}

// RecurringRule is a fixed recurring obligation (subscription, rent, loan).
type RecurringRule struct {
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Interval string  `json:"interval"` // "monthly", "weekly", "yearly"
}

// MonthSnapshot is the financial picture the advisor reasons about.
// It is assembled by the ledger subsystem; the advisor only depends on
// its shape.
type MonthSnapshot struct {
	Month          Month           `json:"month"`
	Currency       string          `json:"currency"`
	TotalIncome    float64         `json:"totalIncome"`
	TotalExpense   float64         `json:"totalExpense"`
	Net            float64         `json:"net"`
	SavingsRate    float64         `json:"savingsRate"` // Net / TotalIncome, 0 when no income
	TopCategories  []CategorySpend `json:"topCategories"`
	Budgets        []BudgetUsage   `json:"budgets"`
	RecurringRules []RecurringRule `json:"recurringRules"`
	TxCount        int             `json:"txCount"`
}

// OverBudget returns the budgets whose spend exceeds the limit.
func (s MonthSnapshot) OverBudget() []BudgetUsage {
	var over []BudgetUsage
	for _, b := range s.Budgets {
		if b.Limit > 0 && b.Spent > b.Limit {
			over = append(over, b)
		}
	}
	return over
}

// RecurringLoad is the total monthly-equivalent cost of recurring rules.
func (s MonthSnapshot) RecurringLoad() float64 {
	var total float64
	for _, r := range s.RecurringRules {
		switch r.Interval {
		case "weekly":
			total += r.Amount * 52 / 12
		case "yearly":
			total += r.Amount / 12
		default:
			total += r.Amount
		}
	}
	return total
}
