package main

import (
	"github.com/spf13/cobra"

	"github.com/temcen/shoprec/internal/services"
)

func init() {
	rootCommand.AddCommand(tokenCommand)
	tokenCommand.Flags().String("subject", "ops", "Subject recorded in the token")
}

var tokenCommand = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin token for the model reload endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		subject, _ := cmd.Flags().GetString("subject")

		token, err := services.NewAuthService(cfg, logger).GenerateToken(subject)
		if err != nil {
			return err
		}
		return writeJSON(token)
	},
}
