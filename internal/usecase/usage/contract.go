package usage

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	Provider() string
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
}
