package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/storage"
	"github.com/cardledger/cardintake/internal/teach"
)

// templateFile is the YAML export format of teach templates
type templateFile struct {
	Templates []teach.Template `yaml:"templates"`
}

func openDB(opts *rootOptions) (*storage.DB, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Server.DataDir)
}

func newTeachCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teach",
		Short: "Manage saved teach templates",
		Long: `Teach templates are the regions operators drew on a card, saved per product
set and layout class. They are replayed for the next card of the same set.`,
	}

	cmd.AddCommand(newTeachListCmd(opts))
	cmd.AddCommand(newTeachExportCmd(opts))
	cmd.AddCommand(newTeachImportCmd(opts))
	cmd.AddCommand(newTeachClearCmd(opts))

	return cmd
}

func newTeachListCmd(opts *rootOptions) *cobra.Command {
	var setID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			templates, err := db.Templates().List(cmd.Context(), setID)
			if err != nil {
				return err
			}
			if len(templates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No teach templates saved")
				return nil
			}

			rows := make([][]string, 0, len(templates))
			for _, t := range templates {
				rows = append(rows, []string{
					t.SetID,
					t.LayoutClass,
					strconv.Itoa(len(t.Regions[models.SideFront])),
					strconv.Itoa(len(t.Regions[models.SideBack])),
					strconv.Itoa(len(t.Regions[models.SideTilt])),
					t.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			printTable(cmd.OutOrStdout(), []string{"Set", "Layout", "Front", "Back", "Tilt", "Updated"}, rows, 2, 3, 4)
			return nil
		},
	}

	cmd.Flags().StringVar(&setID, "set", "", "Only templates of this set id")
	return cmd
}

func newTeachExportCmd(opts *rootOptions) *cobra.Command {
	var setID, file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export templates as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			templates, err := db.Templates().List(cmd.Context(), setID)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if file != "" && file != "-" {
				f, err := os.Create(file)
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				defer f.Close()
				out = f
			}

			encoder := yaml.NewEncoder(out)
			encoder.SetIndent(2)
			if err := encoder.Encode(templateFile{Templates: templates}); err != nil {
				return fmt.Errorf("failed to encode templates: %w", err)
			}
			return encoder.Close()
		},
	}

	cmd.Flags().StringVar(&setID, "set", "", "Only templates of this set id")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Write to file instead of stdout")
	return cmd
}

func newTeachImportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import templates from a YAML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read import file: %w", err)
			}
			var in templateFile
			if err := yaml.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("failed to parse import file: %w", err)
			}

			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			imported, err := importTemplates(cmd.Context(), db.Templates(), in.Templates)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d templates\n", imported)
			return nil
		},
	}
	return cmd
}

func importTemplates(ctx context.Context, store teach.Store, templates []teach.Template) (int, error) {
	for i, t := range templates {
		key := t.Key.Normalize()
		if _, err := store.Save(ctx, "", key, t.Regions); err != nil {
			return i, fmt.Errorf("template %d (%s/%s): %w", i+1, key.SetID, key.LayoutClass, err)
		}
	}
	return len(templates), nil
}

func newTeachClearCmd(opts *rootOptions) *cobra.Command {
	var key teach.Key

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the template of a set and layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			key = key.Normalize()
			if key.SetID == "" {
				return teach.ErrMissingSetID
			}
			db, err := openDB(opts)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Templates().Clear(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared template %s/%s\n", key.SetID, key.LayoutClass)
			return nil
		},
	}

	cmd.Flags().StringVar(&key.SetID, "set", "", "Set id (required)")
	cmd.Flags().StringVar(&key.LayoutClass, "layout", teach.LayoutBase, "Layout class")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}
