package results

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cardledger/cardintake/internal/eval/metrics"
)

// DefaultDir is where reports are written when no directory is given
const DefaultDir = "evals"

// EvalConfig is the run section of the report
type EvalConfig struct {
	metrics.RunInfo `yaml:",inline"`
	SampleSize      int    `yaml:"sample_size"`
	Timestamp       string `yaml:"timestamp"`
}

// FieldSummary is the per-field line of the report
type FieldSummary struct {
	Applied    int            `yaml:"applied"`
	Correct    int            `yaml:"correct"`
	NearMiss   int            `yaml:"near_miss"`
	Wrong      int            `yaml:"wrong"`
	Unexpected int            `yaml:"unexpected"`
	Withheld   int            `yaml:"withheld"`
	Precision  float64        `yaml:"precision"`
	Coverage   float64        `yaml:"coverage"`
	Statuses   map[string]int `yaml:"statuses,omitempty"`
}

// EvalResult is one sample in the report. Abstained fields are omitted.
type EvalResult struct {
	Identifier     string            `yaml:"identifier"`
	Category       string            `yaml:"category"`
	Fields         []FieldOutcome    `yaml:"fields,omitempty"`
	TaxonomyStatus map[string]string `yaml:"taxonomy_status,omitempty"`
}

// FieldOutcome is one compared field of a sample
type FieldOutcome struct {
	Field    string  `yaml:"field"`
	Outcome  string  `yaml:"outcome"`
	Expected string  `yaml:"expected,omitempty"`
	Actual   string  `yaml:"actual,omitempty"`
	Score    float64 `yaml:"score"`
}

// EvalSpec is the complete report
type EvalSpec struct {
	Config  EvalConfig              `yaml:"config"`
	Summary map[string]FieldSummary `yaml:"summary"`
	Results []EvalResult            `yaml:"results"`
}

// Build converts aggregate results into a report
func Build(agg *metrics.AggregateResults) EvalSpec {
	spec := EvalSpec{
		Config: EvalConfig{
			RunInfo:    agg.Run,
			SampleSize: agg.TotalRecords,
			Timestamp:  agg.EvaluationDate.Format("2006-01-02_15-04-05"),
		},
		Summary: make(map[string]FieldSummary, len(agg.Fields)+1),
		Results: make([]EvalResult, 0, len(agg.Results)),
	}

	for name, stats := range agg.Fields {
		spec.Summary[name] = summarize(*stats)
	}
	spec.Summary["all"] = summarize(agg.Overall)

	for _, r := range agg.Results {
		if r.Error != "" {
			continue // Skip failed evaluations
		}
		result := EvalResult{
			Identifier:     r.SampleID,
			Category:       r.Category,
			TaxonomyStatus: r.TaxonomyStatus,
		}
		for _, m := range r.Fields {
			if m.Outcome == metrics.OutcomeAbstained {
				continue
			}
			result.Fields = append(result.Fields, FieldOutcome{
				Field:    m.Field,
				Outcome:  string(m.Outcome),
				Expected: m.Expected,
				Actual:   m.Actual,
				Score:    m.Score,
			})
		}
		spec.Results = append(spec.Results, result)
	}

	return spec
}

func summarize(s metrics.FieldStats) FieldSummary {
	return FieldSummary{
		Applied:    s.Applied(),
		Correct:    s.Correct,
		NearMiss:   s.NearMiss,
		Wrong:      s.Wrong,
		Unexpected: s.Unexpected,
		Withheld:   s.Withheld,
		Precision:  s.Precision(),
		Coverage:   s.Coverage(),
		Statuses:   s.Statuses,
	}
}

// SaveToYAML writes the report under dir and returns the file path
func SaveToYAML(dir string, agg *metrics.AggregateResults) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create evals directory: %w", err)
	}

	spec := Build(agg)
	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", agg.Run.Mode, spec.Config.Timestamp))

	data, err := yaml.Marshal(&spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return filename, nil
	}
	return absPath, nil
}
