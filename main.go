// BudgetGuard: CI workflow cost estimator and budget policy daemon.
// Entry point: the CLI dispatches to the HTTP daemon or a one-shot estimate.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "budgetguard",
		Usage:   "Estimate CI workflow cost and enforce a monthly budget",
		Version: Version,
		Commands: []*cli.Command{
			serveCommand(),
			estimateCommand(),
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "budgetguard %s\n", Version)
					return nil
				},
			},
		},
	}
}
