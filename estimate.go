package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/Manjussha/budgetguard/internal/estimator"
	"github.com/Manjussha/budgetguard/internal/policypack"
)

// Exit codes of the estimate command.
const (
	exitPass    = 0
	exitBlock   = 1
	exitWarn    = 2
	exitInvalid = 10
)

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:  "estimate",
		Usage: "Estimate a workflow file and apply the budget policy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Workflow file, or - for stdin",
			},
			&cli.StringFlag{
				Name:     "runs",
				Aliases:  []string{"r"},
				Usage:    "Workflow runs per month",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "budget",
				Aliases:  []string{"b"},
				Usage:    "Monthly budget in USD",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "mode",
				Value: "warn",
				Usage: "Policy when over budget (warn, block)",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "text",
				Usage: "Output format (text, json, snippet)",
			},
		},
		Action: runEstimate,
	}
}

func runEstimate(c *cli.Context) error {
	text, err := readWorkflow(c.String("file"), os.Stdin)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalid)
	}
	in, err := estimator.Sanitize(estimator.RawFields{
		WorkflowYAML: text,
		MonthlyRuns:  c.String("runs"),
		BudgetUSD:    c.String("budget"),
		PolicyMode:   c.String("mode"),
	})
	if err != nil {
		return cli.Exit("budgetguard: "+err.Error(), exitInvalid)
	}
	res := estimator.Estimate(in)
	if err := writeReport(c.App.Writer, res, c.String("format")); err != nil {
		return cli.Exit(err.Error(), exitInvalid)
	}
	if code := exitCode(res.Summary.Decision); code != exitPass {
		return cli.Exit("", code)
	}
	return nil
}

// readWorkflow loads the workflow from path, or from stdin when path is "-"
// or empty and stdin is piped.
func readWorkflow(path string, stdin *os.File) (string, error) {
	if path != "" && path != "-" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read workflow: %w", err)
		}
		return string(b), nil
	}
	if path == "" && term.IsTerminal(int(stdin.Fd())) {
		return "", fmt.Errorf("no workflow: pass --file or pipe it on stdin")
	}
	b, err := io.ReadAll(io.LimitReader(stdin, 4*estimator.MaxWorkflowChars+1))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func exitCode(d estimator.Decision) int {
	switch d {
	case estimator.DecisionBlock:
		return exitBlock
	case estimator.DecisionWarn:
		return exitWarn
	default:
		return exitPass
	}
}

func writeReport(w io.Writer, res estimator.Result, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "snippet":
		_, err := io.WriteString(w, policypack.Snippet(res))
		return err
	case "text", "":
		return writeText(w, res)
	default:
		return fmt.Errorf("unknown format %q (text, json, snippet)", format)
	}
}

func writeText(w io.Writer, res estimator.Result) error {
	s := res.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Jobs: %d  Steps: %d  Minutes/run: %.2f\n", s.Jobs, s.Steps, s.MinutesPerRun)
	for _, g := range res.ByOS {
		fmt.Fprintf(&b, "  %-8s %d job(s)  %d step(s)  %7.2f min  $%.2f/run\n",
			g.RunnerOS, g.Jobs, g.StepCount, g.MinutesPerRun, g.CostPerRunUSD)
	}
	fmt.Fprintf(&b, "Cost/run: $%.2f  x %d runs = $%.2f/month\n", s.CostPerRunUSD, s.MonthlyRuns, s.MonthlyCostUSD)
	fmt.Fprintf(&b, "Budget:   $%.2f (%s)\n", s.BudgetUSD, s.PolicyMode)
	fmt.Fprintf(&b, "Decision: %s\n", strings.ToUpper(string(s.Decision)))
	_, err := io.WriteString(w, b.String())
	return err
}
