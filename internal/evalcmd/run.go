package evalcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardledger/cardintake/internal/eval/dataset"
	"github.com/cardledger/cardintake/internal/eval/metrics"
	"github.com/cardledger/cardintake/internal/eval/results"
	"github.com/cardledger/cardintake/internal/models"
	"github.com/cardledger/cardintake/internal/suggest"
)

// PolicyLoader returns the resolver policy a run starts from, normally the
// one in the config file.
type PolicyLoader func() (suggest.Policy, error)

// RunOptions configures an evaluation run
type RunOptions struct {
	Dataset      string
	SampleSize   int
	Mode         suggest.Mode
	Concurrency  int
	OutputJSON   string
	OutputReport string
	OutputDir    string
	CacheDir     string
	Token        string
}

func executeRun(ctx context.Context, out io.Writer, opts RunOptions, policy suggest.Policy) error {
	slog.Info("Starting evaluation run", "dataset", opts.Dataset, "mode", opts.Mode,
		"low_confidence", policy.LowConfidence, "taxonomy_floor", policy.TaxonomyFloor)

	samples, err := loadSamples(ctx, opts)
	if err != nil {
		return err
	}

	evaluated, err := Evaluate(ctx, samples, policy, opts.Mode, opts.Concurrency)
	if err != nil {
		return err
	}

	agg := metrics.AggregateEvaluationResults(evaluated, runInfo(opts, policy))
	agg.PrintSummary(out)

	if opts.OutputJSON != "" {
		if err := agg.SaveToJSON(opts.OutputJSON); err != nil {
			return err
		}
		fmt.Fprintf(out, "Results saved to: %s\n", opts.OutputJSON)
	}
	if opts.OutputReport != "" {
		if err := agg.SaveDetailedReport(opts.OutputReport); err != nil {
			return err
		}
		fmt.Fprintf(out, "Detailed report saved to: %s\n", opts.OutputReport)
	}
	if opts.OutputDir != "" {
		path, err := results.SaveToYAML(opts.OutputDir, agg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Evaluation results saved to: %s\n", path)
	}

	return nil
}

func loadSamples(ctx context.Context, opts RunOptions) ([]dataset.Sample, error) {
	loader, err := dataset.LoadOrDownload(ctx, opts.Dataset, dataset.DownloadConfig{
		CacheDir: opts.CacheDir,
		Token:    opts.Token,
	})
	if err != nil {
		return nil, err
	}

	samples, err := loader.LoadSample(opts.SampleSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset %s has no samples", opts.Dataset)
	}

	slog.Info("Dataset loaded", "samples", len(samples))
	return samples, nil
}

func runInfo(opts RunOptions, policy suggest.Policy) metrics.RunInfo {
	return metrics.RunInfo{
		Dataset:        opts.Dataset,
		Mode:           string(opts.Mode),
		HighConfidence: policy.HighConfidence,
		LowConfidence:  policy.LowConfidence,
		TaxonomyFloor:  policy.TaxonomyFloor,
	}
}

// Evaluate resolves every sample under policy and compares the suggestions
// with the confirmed values. Results keep the sample order.
func Evaluate(ctx context.Context, samples []dataset.Sample, policy suggest.Policy, mode suggest.Mode, concurrency int) ([]metrics.EvaluationResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	resolver := suggest.NewResolver(policy)
	out := make([]metrics.EvaluationResult, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range samples {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = evaluateSample(&samples[i], resolver, mode)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluation interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluation interrupted: %w", err)
	}
	return out, nil
}

func evaluateSample(s *dataset.Sample, resolver *suggest.Resolver, mode suggest.Mode) metrics.EvaluationResult {
	start := time.Now()
	result := metrics.EvaluationResult{SampleID: s.ID, Category: s.Category}

	switch models.Category(s.Category) {
	case "", models.CategorySport, models.CategoryTCG:
	default:
		result.Error = fmt.Sprintf("unknown category %q", s.Category)
		return result
	}

	draft := s.NewDraft()
	touched := s.TouchedFields()
	fields, confidence := s.OCR()

	res := resolver.Resolve(suggest.Input{
		Fields:     fields,
		Confidence: confidence,
		Draft:      draft,
		Pool:       s.Pool(),
		Touched:    touched,
		Mode:       mode,
		Hints:      s.Hints,
	})

	for _, f := range evaluatedFields(s, draft, touched) {
		suggestion, applied := res.Get(f)
		match := metrics.CompareField(string(f), s.Expected(f), suggestion.Value, applied)
		if status, ok := res.TaxonomyStatus[f]; ok && (s.HasTruth(f) || fields[f] != "") {
			match.Status = string(status)
		}
		result.Fields = append(result.Fields, match)
	}

	if len(res.TaxonomyStatus) > 0 {
		result.TaxonomyStatus = make(map[string]string, len(res.TaxonomyStatus))
		for f, status := range res.TaxonomyStatus {
			result.TaxonomyStatus[string(f)] = string(status)
		}
	}
	result.ProcessingTime = time.Since(start)
	return result
}

// evaluatedFields lists the fields the resolver could have filled: those with
// a reading or a confirmed value, minus fields the operator already owns.
func evaluatedFields(s *dataset.Sample, draft *models.CardDraft, touched map[models.Field]bool) []models.Field {
	seen := make(map[models.Field]bool)
	var out []models.Field
	add := func(name string) {
		f := models.Field(name)
		if seen[f] || touched[f] || draft.Get(f) != "" || !textField(f) {
			return
		}
		seen[f] = true
		out = append(out, f)
	}
	for _, r := range s.Readings {
		add(r.Field)
	}
	for _, fv := range s.Truth {
		add(fv.Field)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// textField reports whether f holds free text; flags are never suggested.
func textField(f models.Field) bool {
	scratch := models.NewCardDraft("")
	return scratch.Set(f, "x") && scratch.Get(f) == "x"
}
