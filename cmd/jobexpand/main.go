// Copyright Contributors to the KubeTask project

// jobexpand is a CLI front end for the job-template expansion pipeline:
// render a parameterized template, merge in an application template, and
// expand its task factory into a concrete job and task list.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jobexpand",
	Short: "Expand a parameterized batch job template into concrete tasks",
	Long: `jobexpand renders an ARM-style parameterized job template, merges in
any referenced application template, and expands its task factory
(parametricSweep, taskCollection, or taskPerFile) into an ordered task list.

Examples:
  # Render a template with a parameters file
  jobexpand expand --template job.template.json --parameters job.parameters.json

  # Render a template with no parameters file, prompting for any value with
  # no default
  jobexpand expand --template job.template.json --output yaml`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
