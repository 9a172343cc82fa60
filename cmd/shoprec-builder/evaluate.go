package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/temcen/shoprec/internal/builder"
)

func init() {
	rootCommand.AddCommand(evaluateCommand)
	evaluateCommand.Flags().StringP("model", "m", builder.ModelAdvanced, "Model to evaluate (advanced or basic)")
}

var evaluateCommand = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure the hit rate of a model on held out session events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		return withRunner(cmd, func(ctx context.Context, runner *builder.Runner) error {
			result, err := runner.Evaluate(ctx, model)
			if err != nil {
				return err
			}
			return writeJSON(result)
		})
	},
}
