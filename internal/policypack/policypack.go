// Package policypack renders estimate results as repository files: the free
// policy snippet and the paid export bundle.
package policypack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/Manjussha/budgetguard/internal/db"
	"github.com/Manjussha/budgetguard/internal/estimator"
)

// SnippetPath is where the policy file is meant to live in a repository.
const SnippetPath = ".github/workflow-budget.yml"

// File is one generated file.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Pack is the paid export for one session.
type Pack struct {
	SessionID string `json:"session_id"`
	Files     []File `json:"files"`
}

type policy struct {
	Version  int          `yaml:"version"`
	Budget   policyBudget `yaml:"budget"`
	Estimate policyEst    `yaml:"estimate"`
	ByOS     []policyOS   `yaml:"by_os"`
}

type policyBudget struct {
	MonthlyUSD float64 `yaml:"monthly_usd"`
	Mode       string  `yaml:"mode"`
}

type policyEst struct {
	Jobs           int     `yaml:"jobs"`
	Steps          int     `yaml:"steps"`
	MinutesPerRun  float64 `yaml:"minutes_per_run"`
	CostPerRunUSD  float64 `yaml:"cost_per_run_usd"`
	MonthlyRuns    int     `yaml:"monthly_runs"`
	MonthlyCostUSD float64 `yaml:"monthly_cost_usd"`
	Decision       string  `yaml:"decision"`
}

type policyOS struct {
	RunnerOS      string  `yaml:"runner_os"`
	Jobs          int     `yaml:"jobs"`
	Steps         int     `yaml:"steps"`
	MinutesPerRun float64 `yaml:"minutes_per_run"`
	CostPerRunUSD float64 `yaml:"cost_per_run_usd"`
}

const snippetHeader = "# BudgetGuard workflow budget policy\n# Save as " + SnippetPath + "\n"

// Snippet renders the shareable YAML policy for res.
func Snippet(res estimator.Result) string {
	s := res.Summary
	p := policy{
		Version: 1,
		Budget:  policyBudget{MonthlyUSD: s.BudgetUSD, Mode: string(s.PolicyMode)},
		Estimate: policyEst{
			Jobs:           s.Jobs,
			Steps:          s.Steps,
			MinutesPerRun:  s.MinutesPerRun,
			CostPerRunUSD:  s.CostPerRunUSD,
			MonthlyRuns:    s.MonthlyRuns,
			MonthlyCostUSD: s.MonthlyCostUSD,
			Decision:       string(s.Decision),
		},
	}
	for _, g := range res.ByOS {
		p.ByOS = append(p.ByOS, policyOS{
			RunnerOS:      string(g.RunnerOS),
			Jobs:          g.Jobs,
			Steps:         g.StepCount,
			MinutesPerRun: g.MinutesPerRun,
			CostPerRunUSD: g.CostPerRunUSD,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(snippetHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	// Plain structs of scalars always encode.
	_ = enc.Encode(p)
	_ = enc.Close()
	return buf.String()
}

type checkWorkflow struct {
	Name string              `yaml:"name"`
	On   checkTrigger        `yaml:"on"`
	Jobs map[string]checkJob `yaml:"jobs"`
}

type checkTrigger struct {
	PullRequest checkPaths `yaml:"pull_request"`
}

type checkPaths struct {
	Paths []string `yaml:"paths"`
}

type checkJob struct {
	RunsOn string      `yaml:"runs-on"`
	Steps  []checkStep `yaml:"steps"`
}

type checkStep struct {
	Name string `yaml:"name,omitempty"`
	Uses string `yaml:"uses,omitempty"`
	Run  string `yaml:"run,omitempty"`
}

func checkFile(s estimator.Summary) (string, error) {
	cmd := fmt.Sprintf(
		"budgetguard estimate --file .github/workflows/ci.yml --runs %d --budget %s --mode %s",
		s.MonthlyRuns, strconv.FormatFloat(s.BudgetUSD, 'f', -1, 64), s.PolicyMode,
	)
	wf := checkWorkflow{
		Name: "Workflow budget",
		On:   checkTrigger{PullRequest: checkPaths{Paths: []string{".github/workflows/**"}}},
		Jobs: map[string]checkJob{
			"budget": {
				RunsOn: "ubuntu-latest",
				Steps: []checkStep{
					{Uses: "actions/checkout@v4"},
					{Uses: "actions/setup-go@v5", Name: "Set up Go"},
					{Name: "Install budgetguard", Run: "go install github.com/Manjussha/budgetguard@latest"},
					{Name: "Check budget", Run: cmd},
				},
			},
		},
	}
	out, err := yaml.Marshal(wf)
	if err != nil {
		return "", fmt.Errorf("policypack: budget-check.yml: %w", err)
	}
	return string(out), nil
}

var readmeTmpl = template.Must(template.New("readme").Parse(`# Workflow budget policy pack

Session: {{.ID}}
Generated: {{.CreatedAt.Format "2006-01-02"}}

| Metric | Value |
|---|---|
| Jobs | {{.Summary.Jobs}} |
| Steps | {{.Summary.Steps}} |
| Minutes per run | {{printf "%.2f" .Summary.MinutesPerRun}} |
| Cost per run | ${{printf "%.2f" .Summary.CostPerRunUSD}} |
| Monthly runs | {{.Summary.MonthlyRuns}} |
| Monthly cost | ${{printf "%.2f" .Summary.MonthlyCostUSD}} |
| Budget | ${{printf "%.2f" .Summary.BudgetUSD}} ({{.Summary.PolicyMode}}) |
| Decision | **{{.Summary.Decision}}** |

## By runner OS
{{range .ByOS}}
- {{.RunnerOS}}: {{.Jobs}} job(s), {{.StepCount}} step(s), {{printf "%.2f" .MinutesPerRun}} min, ${{printf "%.2f" .CostPerRunUSD}} per run
{{- end}}

## Files

- ` + "`workflow-budget.yml`" + `: the policy, copy to ` + "`" + SnippetPath + "`" + `
- ` + "`budget-check.yml`" + `: a pull request check, copy to ` + "`.github/workflows/`" + `
- ` + "`estimate.json`" + `: the full estimate

## Assumptions
{{range .Assumptions}}
- {{.}}
{{- end}}
`))

// Build assembles the export bundle for a stored session.
func Build(sess *db.Session, res estimator.Result) (*Pack, error) {
	check, err := checkFile(res.Summary)
	if err != nil {
		return nil, err
	}

	var readme bytes.Buffer
	err = readmeTmpl.Execute(&readme, struct {
		*db.Session
		estimator.Result
	}{sess, res})
	if err != nil {
		return nil, fmt.Errorf("policypack: README.md: %w", err)
	}

	est, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("policypack: estimate.json: %w", err)
	}

	return &Pack{
		SessionID: sess.ID,
		Files: []File{
			{Path: "workflow-budget.yml", Content: Snippet(res)},
			{Path: "budget-check.yml", Content: check},
			{Path: "README.md", Content: readme.String()},
			{Path: "estimate.json", Content: string(est) + "\n"},
		},
	}, nil
}
