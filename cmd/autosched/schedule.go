package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arrayforge/autosched/autosched"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <problem.json>",
	Short: "Run the beam search over a problem file and print the schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	prob, err := loadProblem(args[0])
	if err != nil {
		return fmt.Errorf("autosched: load problem: %w", err)
	}

	cfg := loadSearchConfig()

	res, err := autosched.Solve(context.Background(), prob, cfg, log)
	if err != nil {
		return fmt.Errorf("autosched: solve: %w", err)
	}

	printResult(cmd, res)
	return nil
}

func printResult(cmd *cobra.Command, res autosched.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "predicted cost: %g\n\n", res.Cost)

	fmt.Fprintln(out, "directives:")
	for _, d := range res.Directives {
		fmt.Fprintf(out, "  %s\n", describeDirective(d))
	}

	fmt.Fprintln(out, "\ncost breakdown:")
	for _, b := range res.Breakdown {
		fmt.Fprintf(out, "  %-16s compute=%-12g memory=%g\n", b.Func, b.ComputeCost, b.MemoryCost)
	}
}
