package usage

// BudgetReader provides read-only access to generation token budget state.
// Remaining* return -1 when the period has no limit.
type BudgetReader interface {
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
	RemainingDaily() int64
	RemainingMonthly() int64
}
