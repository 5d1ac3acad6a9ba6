package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cardledger/cardintake/internal/evalcmd"
	"github.com/cardledger/cardintake/internal/suggest"
)

func newEvalCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Suggestion resolver evaluation tools",
		Long: `Evaluation tools for calibrating the suggestion resolver.

A labeled dataset pairs OCR readings and confidences with the values reviewers
confirmed. Runs report how often applied values were right and how often correct
values were withheld, so the confidence thresholds can be tuned.`,
	}

	loadPolicy := func() (suggest.Policy, error) {
		cfg, err := opts.loadConfig()
		if err != nil {
			return suggest.Policy{}, err
		}
		return cfg.Policy, nil
	}

	cmd.AddCommand(evalcmd.NewRunCmd(loadPolicy))
	cmd.AddCommand(evalcmd.NewSweepCmd(loadPolicy))
	cmd.AddCommand(evalcmd.NewInspectCmd())
	cmd.AddCommand(evalcmd.NewReportCmd())
	cmd.AddCommand(evalcmd.NewDownloadCmd())

	return cmd
}
