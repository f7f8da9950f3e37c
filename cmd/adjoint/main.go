// Package main provides the adjoint command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adjoint-ml/adjoint/internal/config"
	"github.com/adjoint-ml/adjoint/internal/schedule"
)

const version = "v0.1.0-dev"

func main() {
	root := &cobra.Command{
		Use:   "adjoint",
		Short: "Tape-based adjoint and tangent-linear derivative toolkit",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(scheduleCmd(), validateCmd(), versionCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func scheduleCmd() *cobra.Command {
	var (
		blocks    int
		snaps     int
		diskSnaps int
		slowWrite float64
		slowRead  float64
		summary   bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the checkpointing schedule for a block count and budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			var plan *schedule.Plan
			var err error
			if diskSnaps > 0 {
				plan, err = schedule.Multistage(blocks, snaps, diskSnaps, schedule.Weights{
					SlowWrite: slowWrite,
					SlowRead:  slowRead,
				})
			} else {
				plan, err = schedule.Revolve(blocks, snaps)
			}
			if err != nil {
				return err
			}
			if !summary {
				for _, a := range plan.Actions() {
					fmt.Fprintln(cmd.OutOrStdout(), a)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocks %d, replays %d\n", blocks, plan.Replays())
			return nil
		},
	}
	cmd.Flags().IntVar(&blocks, "blocks", 0, "number of forward blocks")
	cmd.Flags().IntVar(&snaps, "snaps", 1, "fast-tier checkpoint budget, including the initial state")
	cmd.Flags().IntVar(&diskSnaps, "disk-snaps", 0, "slow-tier checkpoint budget")
	cmd.Flags().Float64Var(&slowWrite, "slow-write-cost", 1, "slow-tier write cost in block evaluations")
	cmd.Flags().Float64Var(&slowRead, "slow-read-cost", 1, "slow-tier read cost in block evaluations")
	cmd.Flags().BoolVar(&summary, "summary", false, "print the replay count only")
	_ = cmd.MarkFlagRequired("blocks")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (policy %s)\n", args[0], cfg.Checkpointing.Policy)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adjoint %s\n", version)
		},
	}
}
