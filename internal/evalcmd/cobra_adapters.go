package evalcmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardledger/cardintake/internal/eval/dataset"
	"github.com/cardledger/cardintake/internal/eval/results"
	"github.com/cardledger/cardintake/internal/suggest"
)

// datasetFlags are shared by the commands that read a labeled dataset
func datasetFlags(cmd *cobra.Command, opts *RunOptions) {
	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "Path or URL of a labeled .jsonl or .parquet dataset (required)")
	cmd.Flags().StringVar(&opts.CacheDir, "cache-dir", dataset.DefaultCacheDir, "Cache directory for downloaded datasets")
	cmd.Flags().StringVar(&opts.Token, "token", os.Getenv("DATASET_TOKEN"), "Bearer token for private dataset URLs")
	_ = cmd.MarkFlagRequired("dataset")
}

func parseMode(mode string) (suggest.Mode, error) {
	switch m := suggest.Mode(strings.ToLower(mode)); m {
	case suggest.ModeHigh, suggest.ModeLow:
		return m, nil
	}
	return "", fmt.Errorf("invalid --mode %q (supported: high, low)", mode)
}

// policyOverrides applies the threshold flags the user actually set
func policyOverrides(cmd *cobra.Command, loadPolicy PolicyLoader, low, floor float64) (suggest.Policy, error) {
	policy, err := loadPolicy()
	if err != nil {
		return suggest.Policy{}, err
	}
	if cmd.Flags().Changed("low-confidence") {
		policy.LowConfidence = low
	}
	if cmd.Flags().Changed("taxonomy-floor") {
		policy.TaxonomyFloor = floor
	}
	if policy.LowConfidence < 0 || policy.LowConfidence > 1 || policy.TaxonomyFloor < 0 || policy.TaxonomyFloor > 1 {
		return suggest.Policy{}, fmt.Errorf("thresholds must be between 0 and 1")
	}
	return policy, nil
}

// NewRunCmd creates the run command
func NewRunCmd(loadPolicy PolicyLoader) *cobra.Command {
	var opts RunOptions
	var mode string
	var lowConfidence, taxonomyFloor float64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the suggestion resolver against a labeled dataset",
		Long: `Run the suggestion resolver over labeled intake samples and compare the values
it would apply with the values reviewers confirmed.

Each sample carries the OCR readings and confidences, the draft as the operator left
it, the approved option pool for its scope and the confirmed field values. Results
are reported per field as applied-correct, applied-wrong and withheld counts.`,
		Example: `  # Evaluate the configured policy
  cardintake eval run --dataset ./labels.jsonl

  # Evaluate the low-confidence retry at a stricter threshold
  cardintake eval run --dataset ./labels.parquet --mode low --low-confidence 0.65

  # Save a YAML report under evals/
  cardintake eval run --dataset https://data.example.com/labels.jsonl --output evals`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			opts.Mode = m
			policy, err := policyOverrides(cmd, loadPolicy, lowConfidence, taxonomyFloor)
			if err != nil {
				return err
			}
			return executeRun(cmd.Context(), cmd.OutOrStdout(), opts, policy)
		},
	}

	datasetFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.SampleSize, "sample", 0, "Number of samples to evaluate (0 for all)")
	cmd.Flags().StringVar(&mode, "mode", string(suggest.ModeHigh), "Confidence pass to evaluate (high or low)")
	cmd.Flags().Float64Var(&lowConfidence, "low-confidence", 0, "Override the low-confidence threshold")
	cmd.Flags().Float64Var(&taxonomyFloor, "taxonomy-floor", 0, "Override the taxonomy confidence floor")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "Samples evaluated in parallel")
	cmd.Flags().StringVar(&opts.OutputDir, "output", "", "Directory for the YAML report (e.g. "+results.DefaultDir+")")
	cmd.Flags().StringVar(&opts.OutputJSON, "output-json", "", "Path to output JSON results file")
	cmd.Flags().StringVar(&opts.OutputReport, "output-report", "", "Path to output detailed text report")

	return cmd
}

// NewSweepCmd creates the sweep command
func NewSweepCmd(loadPolicy PolicyLoader) *cobra.Command {
	var opts RunOptions
	var mode, param, field string
	var thresholds []float64

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Compare precision and coverage across thresholds",
		Long: `Evaluate the dataset once per threshold, varying either the low-confidence
threshold or the taxonomy confidence floor, and print precision and coverage for each.`,
		Example: `  cardintake eval sweep --dataset ./labels.jsonl --param low-confidence --thresholds 0.3,0.4,0.5,0.6,0.7
  cardintake eval sweep --dataset ./labels.jsonl --param taxonomy-floor --field parallel`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			opts.Mode = m
			policy, err := loadPolicy()
			if err != nil {
				return err
			}
			points, err := Sweep(cmd.Context(), opts, policy, param, thresholds, field)
			if err != nil {
				return err
			}
			printSweep(cmd.OutOrStdout(), param, field, points)
			return nil
		},
	}

	datasetFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.SampleSize, "sample", 0, "Number of samples to evaluate (0 for all)")
	cmd.Flags().StringVar(&mode, "mode", string(suggest.ModeLow), "Confidence pass to evaluate (high or low)")
	cmd.Flags().StringVar(&param, "param", SweepLowConfidence, "Policy parameter to vary (low-confidence or taxonomy-floor)")
	cmd.Flags().Float64SliceVar(&thresholds, "thresholds", []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}, "Threshold values to evaluate")
	cmd.Flags().StringVar(&field, "field", "", "Restrict stats to one field (e.g. setName)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "Samples evaluated in parallel")

	return cmd
}

// NewInspectCmd creates the inspect command
func NewInspectCmd() *cobra.Command {
	var run RunOptions
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect labeled samples",
		Long: `Print samples from a labeled dataset: the draft, OCR readings with confidences,
confirmed values and optionally the option pool.`,
		Example: `  # Inspect the first 5 samples interactively
  cardintake eval inspect --dataset ./labels.jsonl --limit 5 --interactive

  # Show one sample with its pool
  cardintake eval inspect --dataset ./labels.parquet --id card-0042 --pool`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeInspect(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), run, opts)
		},
	}

	datasetFlags(cmd, &run)
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "Number of samples to inspect (0 for all)")
	cmd.Flags().BoolVar(&opts.Interactive, "interactive", false, "Pause after each sample (press Enter to continue)")
	cmd.Flags().BoolVar(&opts.ShowPool, "pool", false, "Show the approved option pool")
	cmd.Flags().StringVar(&opts.ID, "id", "", "Show only the sample with this id")

	return cmd
}

// NewReportCmd creates the report command
func NewReportCmd() *cobra.Command {
	var resultsPath string
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report on saved evaluation results",
		Example: `  cardintake eval report --results eval_results.json
  cardintake eval report --results eval_results.json --format csv > outcomes.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeReport(cmd.OutOrStdout(), resultsPath, format)
		},
	}

	cmd.Flags().StringVar(&resultsPath, "results", "eval_results.json", "Results JSON written by eval run --output-json")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, csv)")

	return cmd
}

// NewDownloadCmd creates the download command
func NewDownloadCmd() *cobra.Command {
	var config dataset.DownloadConfig
	var clearCache bool

	cmd := &cobra.Command{
		Use:   "download [url]",
		Short: "Download a labeled dataset into the local cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			if url == "" && !clearCache {
				return fmt.Errorf("a dataset url is required")
			}
			return executeDownload(cmd.Context(), cmd.OutOrStdout(), url, config, clearCache)
		},
	}

	cmd.Flags().StringVar(&config.CacheDir, "cache-dir", dataset.DefaultCacheDir, "Cache directory for downloaded datasets")
	cmd.Flags().BoolVar(&config.ForceDownload, "force", false, "Download even when cached")
	cmd.Flags().StringVar(&config.Token, "token", os.Getenv("DATASET_TOKEN"), "Bearer token for private dataset URLs")
	cmd.Flags().BoolVar(&clearCache, "clear", false, "Remove cached datasets first")

	return cmd
}
