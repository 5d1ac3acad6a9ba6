package evalcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/cardledger/cardintake/internal/eval/metrics"
	"github.com/cardledger/cardintake/internal/suggest"
)

// Sweep parameters
const (
	SweepLowConfidence = "low-confidence"
	SweepTaxonomyFloor = "taxonomy-floor"
)

// SweepPoint is the outcome of one threshold
type SweepPoint struct {
	Threshold float64
	Stats     metrics.FieldStats
}

// Sweep evaluates the samples once per threshold, varying one policy
// parameter. A non-empty field restricts the stats to that field.
func Sweep(ctx context.Context, opts RunOptions, base suggest.Policy, param string, thresholds []float64, field string) ([]SweepPoint, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("at least one threshold is required")
	}
	for _, th := range thresholds {
		if th < 0 || th > 1 {
			return nil, fmt.Errorf("threshold %.2f outside [0,1]", th)
		}
	}
	if param != SweepLowConfidence && param != SweepTaxonomyFloor {
		return nil, fmt.Errorf("unknown sweep parameter %q (supported: %s, %s)", param, SweepLowConfidence, SweepTaxonomyFloor)
	}

	samples, err := loadSamples(ctx, opts)
	if err != nil {
		return nil, err
	}

	sorted := append([]float64(nil), thresholds...)
	sort.Float64s(sorted)

	points := make([]SweepPoint, 0, len(sorted))
	for _, th := range sorted {
		policy := base
		if param == SweepLowConfidence {
			policy.LowConfidence = th
		} else {
			policy.TaxonomyFloor = th
		}

		evaluated, err := Evaluate(ctx, samples, policy, opts.Mode, opts.Concurrency)
		if err != nil {
			return nil, err
		}
		agg := metrics.AggregateEvaluationResults(evaluated, runInfo(opts, policy))

		stats := agg.Overall
		if field != "" {
			stats = metrics.FieldStats{}
			if fs, ok := agg.Fields[field]; ok {
				stats = *fs
			}
		}
		slog.Debug("Sweep point evaluated", "param", param, "threshold", th,
			"precision", stats.Precision(), "coverage", stats.Coverage())
		points = append(points, SweepPoint{Threshold: th, Stats: stats})
	}

	return points, nil
}

func printSweep(out io.Writer, param, field string, points []SweepPoint) {
	scope := "all fields"
	if field != "" {
		scope = field
	}
	fmt.Fprintf(out, "Sweep of %s over %s\n", param, scope)

	rows := make([][]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, []string{
			fmt.Sprintf("%.2f", p.Threshold),
			fmt.Sprint(p.Stats.Applied()),
			fmt.Sprint(p.Stats.Correct),
			fmt.Sprint(p.Stats.Wrong + p.Stats.NearMiss + p.Stats.Unexpected),
			fmt.Sprint(p.Stats.Withheld),
			fmt.Sprintf("%.1f%%", p.Stats.Precision()*100),
			fmt.Sprintf("%.1f%%", p.Stats.Coverage()*100),
		})
	}
	fmt.Fprintln(out, metrics.RenderTable(
		[]string{"Threshold", "Applied", "Correct", "Incorrect", "Withheld", "Precision", "Coverage"},
		rows,
		[]bool{true, true, true, true, true, true, true},
	))
}
