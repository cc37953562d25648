// Package estimator turns a CI workflow definition into a monthly cost estimate
// and a budget policy decision.
//
// The pipeline is Sanitize → ScanWorkflow → aggregate → Decide. Every stage
// after Sanitize is total: Estimate never fails and holds no shared state, so
// it is safe to call from concurrent requests.
package estimator

// Input is a validated estimate request. Build it with Sanitize.
type Input struct {
	WorkflowYAML string     `json:"workflowYaml"`
	MonthlyRuns  int        `json:"monthlyRuns"`
	BudgetUSD    float64    `json:"budgetUsd"`
	PolicyMode   PolicyMode `json:"policyMode"`
}

// Summary holds whole-workflow totals and the policy outcome.
type Summary struct {
	Jobs           int        `json:"jobs"`
	Steps          int        `json:"steps"`
	MinutesPerRun  float64    `json:"minutesPerRun"`
	CostPerRunUSD  float64    `json:"costPerRunUsd"`
	MonthlyRuns    int        `json:"monthlyRuns"`
	MonthlyCostUSD float64    `json:"monthlyCostUsd"`
	BudgetUSD      float64    `json:"budgetUsd"`
	PolicyMode     PolicyMode `json:"policyMode"`
	Decision       Decision   `json:"decision"`
}

// Result is the full estimate returned to callers.
type Result struct {
	Summary     Summary       `json:"summary"`
	ByOS        []OSAggregate `json:"byOs"`
	Assumptions []string      `json:"assumptions"`
}

// Assumptions lists the modeling caveats attached to every estimate.
var Assumptions = []string{
	"Each job carries a fixed 2.0 minute setup overhead.",
	"Each 'uses' step is modeled at 1.5 minutes and each 'run' step at 3.0 minutes.",
	"Per-minute rates: Linux $0.008, Windows $0.016, macOS $0.08.",
	"Matrices, reusable workflows, conditionals and multiline step bodies are not expanded.",
	"A workflow without recognizable jobs is treated as one Linux job with 3 steps (8.5 minutes).",
}

// Estimate scans the workflow, prices it per runner OS and applies the
// budget policy.
func Estimate(in Input) Result {
	jobs := ScanWorkflow(in.WorkflowYAML)
	groups, totals := aggregate(jobs)

	costPerRun := Round2(totals.costPerRun)
	monthlyCost := Round2(costPerRun * float64(in.MonthlyRuns))

	byOS := make([]OSAggregate, len(groups))
	for i, g := range groups {
		byOS[i] = g.emit()
	}
	assumptions := make([]string, len(Assumptions))
	copy(assumptions, Assumptions)

	return Result{
		Summary: Summary{
			Jobs:           totals.jobs,
			Steps:          totals.steps,
			MinutesPerRun:  Round2(totals.minutes),
			CostPerRunUSD:  costPerRun,
			MonthlyRuns:    in.MonthlyRuns,
			MonthlyCostUSD: monthlyCost,
			BudgetUSD:      in.BudgetUSD,
			PolicyMode:     in.PolicyMode,
			Decision:       Decide(monthlyCost, in.BudgetUSD, in.PolicyMode),
		},
		ByOS:        byOS,
		Assumptions: assumptions,
	}
}
