package estimator

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Input bounds.
const (
	MaxWorkflowChars = 100_000
	MaxMonthlyRuns   = 1_000_000
	MaxBudgetUSD     = 1_000_000
)

// ErrorKind is the opaque code surfaced to API callers.
type ErrorKind string

const (
	KindInvalidWorkflow    ErrorKind = "invalid_workflow_yaml"
	KindInvalidMonthlyRuns ErrorKind = "invalid_monthly_runs"
	KindInvalidBudget      ErrorKind = "invalid_budget_usd"
	KindInvalidPolicyMode  ErrorKind = "invalid_policy_mode"
)

// ValidationError reports which raw field was rejected.
type ValidationError struct {
	Kind ErrorKind
}

func (e *ValidationError) Error() string { return string(e.Kind) }

var (
	ErrInvalidWorkflow    = &ValidationError{Kind: KindInvalidWorkflow}
	ErrInvalidMonthlyRuns = &ValidationError{Kind: KindInvalidMonthlyRuns}
	ErrInvalidBudget      = &ValidationError{Kind: KindInvalidBudget}
	ErrInvalidPolicyMode  = &ValidationError{Kind: KindInvalidPolicyMode}
)

// KindOf returns the validation kind carried by err, or "" if err is not a
// validation error.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// RawFields is the untyped request body. Numbers may arrive as JSON numbers
// or numeric strings.
type RawFields struct {
	WorkflowYAML any `json:"workflowYaml"`
	MonthlyRuns  any `json:"monthlyRuns"`
	BudgetUSD    any `json:"budgetUsd"`
	PolicyMode   any `json:"policyMode"`
}

// Sanitize validates and normalizes raw fields. Fields are checked in order
// workflow, runs, budget, mode and the first failure is returned.
func Sanitize(raw RawFields) (Input, error) {
	text, ok := raw.WorkflowYAML.(string)
	if !ok {
		return Input{}, ErrInvalidWorkflow
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > MaxWorkflowChars {
		return Input{}, ErrInvalidWorkflow
	}

	runs, ok := toNumber(raw.MonthlyRuns)
	if !ok || runs <= 0 || runs > MaxMonthlyRuns {
		return Input{}, ErrInvalidMonthlyRuns
	}
	monthlyRuns := int(math.Round(runs))
	if monthlyRuns < 1 {
		return Input{}, ErrInvalidMonthlyRuns
	}

	budget, ok := toNumber(raw.BudgetUSD)
	if !ok || budget <= 0 || budget > MaxBudgetUSD {
		return Input{}, ErrInvalidBudget
	}
	budget = Round2(budget)
	if budget <= 0 {
		return Input{}, ErrInvalidBudget
	}

	var mode string
	switch m := raw.PolicyMode.(type) {
	case string:
		mode = m
	case PolicyMode:
		mode = string(m)
	default:
		return Input{}, ErrInvalidPolicyMode
	}
	policyMode, err := ParsePolicyMode(mode)
	if err != nil {
		return Input{}, err
	}

	return Input{
		WorkflowYAML: text,
		MonthlyRuns:  monthlyRuns,
		BudgetUSD:    budget,
		PolicyMode:   policyMode,
	}, nil
}

// Raw converts a validated input back into raw fields, so that a stored
// input can be sanitized again.
func (in Input) Raw() RawFields {
	return RawFields{
		WorkflowYAML: in.WorkflowYAML,
		MonthlyRuns:  in.MonthlyRuns,
		BudgetUSD:    in.BudgetUSD,
		PolicyMode:   string(in.PolicyMode),
	}
}

// ParsePolicyMode accepts "warn" or "block" in any case, surrounding
// whitespace ignored.
func ParsePolicyMode(s string) (PolicyMode, error) {
	switch PolicyMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeWarn:
		return ModeWarn, nil
	case ModeBlock:
		return ModeBlock, nil
	}
	return "", ErrInvalidPolicyMode
}

// toNumber coerces a decoded JSON value to a finite float64.
func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
