package cmd

import (
	"fmt"
	"github.com/iamwookie/qadir-bot/qadir"
	"github.com/spf13/cobra"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the Qadir bot and, if enabled, the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			bot, err := qadir.New(cfg)
			if err != nil {
				return fmt.Errorf("error creating qadir: %w", err)
			}

			if err = bot.Run(ctx); err != nil {
				return fmt.Errorf("error running qadir: %w", err)
			}
			return nil
		},
	}
)

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(runCmd)
}
