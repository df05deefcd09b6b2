package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/iamwookie/qadir-bot/qadir"
	"github.com/spf13/cobra"
	"io"
	"os"
	"text/tabwriter"
)

var itemsFile string

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage the loot item catalogue used by /event loot",
}

var itemsSetCmd = &cobra.Command{
	Use:   "set --file items.json",
	Short: "Validate and replace the item catalogue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		items, err := readItems(itemsFile)
		if err != nil {
			return err
		}
		return withCache(cmd.Context(), func(c *qadir.Cache) error {
			if err := c.SetItems(cmd.Context(), items); err != nil {
				return fmt.Errorf("error saving items: %w", err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "saved %d items\n", len(items))
			return err
		})
	},
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the item catalogue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd.Context(), func(c *qadir.Cache) error {
			items, err := c.Items(cmd.Context())
			if err != nil {
				return fmt.Errorf("error loading items: %w", err)
			}
			return printItems(cmd.OutOrStdout(), items)
		})
	},
}

// readItems reads a JSON array of items, ex: [{"id": "1", "name": "Gold"}]
func readItems(path string) ([]qadir.LootItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading items file: %w", err)
	}
	var items []qadir.LootItem
	if err = json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("error parsing items file: %w", err)
	}
	return items, nil
}

func printItems(w io.Writer, items []qadir.LootItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME")
	for _, item := range items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", item.ID, item.Name)
	}
	return tw.Flush()
}

// withCache connects to redis, runs f and closes the connection
func withCache(ctx context.Context, f func(c *qadir.Cache) error) error {
	bot, err := qadir.New(cfg)
	if err != nil {
		return err
	}
	c, err := bot.Cache(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()
	return f(c)
}

//nolint:gochecknoinits
func init() {
	itemsSetCmd.Flags().StringVarP(&itemsFile, "file", "f", "", "JSON file with the items")
	_ = itemsSetCmd.MarkFlagRequired("file")

	itemsCmd.AddCommand(itemsSetCmd, itemsListCmd)
	rootCmd.AddCommand(itemsCmd)
}
