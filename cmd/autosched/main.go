// Command autosched is the CLI front door around the autoscheduler core
// (spec §0 module layout: "CLI front door"). It loads a JSON problem
// description, runs the beam search, and prints the resulting directive
// sequence and diagnostic cost breakdown.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "autosched",
	Short: "Tree-search autoscheduler for data-parallel array programs",
	Long: `autosched runs the beam-search autoscheduler over a Function DAG
described by a JSON problem file, and prints the scheduling directives an
external back-end would apply.`,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
