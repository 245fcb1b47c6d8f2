package usage

// BudgetReader provides read-only access to spend budget state.
type BudgetReader interface {
	DailyLimit() float64
	MonthlyLimit() float64
	DailyUsed() float64
	MonthlyUsed() float64
	RemainingDaily() float64
	RemainingMonthly() float64
}
