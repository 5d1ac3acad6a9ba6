package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the deferred intake queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List deferred cards, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			items, err := db.Queue().List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, item := range items {
				d := item.Draft
				rows = append(rows, []string{
					item.CardID,
					string(d.Required.Category),
					d.Get(d.IdentityField()),
					d.Required.Year,
					d.Required.Manufacturer,
					d.Optional.ProductLine,
					item.EnqueuedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"Card", "Category", "Identity", "Year", "Manufacturer", "Set", "Deferred"}, rows)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <card-id>",
		Short: "Drop a deferred card from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Queue().Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	})

	return cmd
}
