package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/temcen/shoprec/internal/builder"
)

func init() {
	rootCommand.AddCommand(advancedCommand)
	rootCommand.AddCommand(basicCommand)
}

var advancedCommand = &cobra.Command{
	Use:   "advanced",
	Short: "Build the group based model and store it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(ctx context.Context, runner *builder.Runner) error {
			report, err := runner.BuildAdvanced(ctx)
			if err != nil {
				return err
			}
			return writeJSON(report)
		})
	},
}

var basicCommand = &cobra.Command{
	Use:   "basic",
	Short: "Build the popularity weighted model and store it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(ctx context.Context, runner *builder.Runner) error {
			report, err := runner.BuildBasic(ctx)
			if err != nil {
				return err
			}
			return writeJSON(report)
		})
	},
}
