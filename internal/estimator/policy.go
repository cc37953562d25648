package estimator

// PolicyMode is the caller-chosen severity applied when cost exceeds budget.
type PolicyMode string

const (
	ModeWarn  PolicyMode = "warn"
	ModeBlock PolicyMode = "block"
)

// Decision is the policy outcome of an estimate.
type Decision string

const (
	DecisionPass  Decision = "pass"
	DecisionWarn  Decision = "warn"
	DecisionBlock Decision = "block"
)

// Decide compares the monthly cost against the budget. Spending exactly the
// budget passes; anything above it maps to the caller's mode.
func Decide(monthlyCostUSD, budgetUSD float64, mode PolicyMode) Decision {
	if monthlyCostUSD > budgetUSD {
		return Decision(mode)
	}
	return DecisionPass
}

// OverBudget reports whether the decision means the budget was exceeded.
func (d Decision) OverBudget() bool {
	return d == DecisionWarn || d == DecisionBlock
}
