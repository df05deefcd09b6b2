package cmd

import (
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/iamwookie/qadir-bot/qadir"
	"github.com/spf13/cobra"
	"sort"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Manage the bot's slash commands",
}

var commandsRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Overwrite the bot's slash commands in every configured guild",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		bot, err := qadir.New(cfg)
		if err != nil {
			return err
		}
		if err = bot.ValidateConfig(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		registered, err := bot.RegisterSlashCommands(discordgo.WithContext(cmd.Context()))
		if err != nil {
			return fmt.Errorf("error registering commands: %w", err)
		}

		guilds := make([]string, 0, len(registered))
		for g := range registered {
			guilds = append(guilds, g)
		}
		sort.Strings(guilds)
		out := cmd.OutOrStdout()
		for _, g := range guilds {
			scope := "guild " + g
			if g == "" {
				scope = "global"
			}
			for _, c := range registered[g] {
				_, _ = fmt.Fprintf(out, "%s: /%s (%s)\n", scope, c.Name, c.ID)
			}
		}
		return nil
	},
}

//nolint:gochecknoinits
func init() {
	commandsCmd.AddCommand(commandsRegisterCmd)
	rootCmd.AddCommand(commandsCmd)
}
