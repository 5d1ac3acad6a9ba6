package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardledger/cardintake/internal/pool"
)

func newPoolCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Query the approved catalog option pool",
	}

	var scope pool.Scope
	var asJSON bool

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the approved sets, inserts and parallels for a scope",
		Example: `  cardintake pool show --year 2023 --manufacturer Topps --sport Baseball
  cardintake pool show --year 2023 --manufacturer Topps --sport Baseball --product-line "Topps Chrome" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			provider, err := newPoolProvider(cfg)
			if err != nil {
				return err
			}

			p, err := provider.Fetch(cmd.Context(), scope)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(p)
			}

			fmt.Fprintf(out, "Scope: %s\n", scopeLabel(p.Scope))
			fmt.Fprintf(out, "Approved sets: %d, variants: %d\n", p.Summary.ApprovedSetCount, p.Summary.VariantCount)

			setRows := make([][]string, 0, len(p.ProductSets))
			for _, s := range p.ProductSets {
				setRows = append(setRows, []string{s.ID, s.Name})
			}
			printTable(out, []string{"Set ID", "Product Set"}, setRows)
			printTable(out, []string{"Insert", "Sets", "Cards"}, optionRows(p.InsertOptions), 2)
			printTable(out, []string{"Parallel", "Sets", "Cards"}, optionRows(p.ParallelOptions), 2)
			return nil
		},
	}

	show.Flags().StringVar(&scope.Year, "year", "", "Card year or season")
	show.Flags().StringVar(&scope.Manufacturer, "manufacturer", "", "Manufacturer")
	show.Flags().StringVar(&scope.Sport, "sport", "", "Sport or game")
	show.Flags().StringVar(&scope.ProductLine, "product-line", "", "Narrow variants to one product line")
	show.Flags().BoolVar(&asJSON, "json", false, "Print the pool as JSON")

	cmd.AddCommand(show)
	return cmd
}

func scopeLabel(s pool.Scope) string {
	parts := []string{s.Year, s.Manufacturer, s.Sport}
	if s.ProductLine != "" {
		parts = append(parts, s.ProductLine)
	}
	return strings.Join(parts, " / ")
}

func optionRows(opts []pool.Option) [][]string {
	rows := make([][]string, 0, len(opts))
	for _, o := range opts {
		rows = append(rows, []string{o.Label, strings.Join(o.SetIDs, ", "), strconv.Itoa(o.Count)})
	}
	return rows
}
