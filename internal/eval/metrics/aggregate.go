package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// EvaluationResult is the outcome of resolving one sample
type EvaluationResult struct {
	SampleID       string            `json:"sampleId"`
	Category       string            `json:"category"`
	Fields         []FieldMatch      `json:"fields"`
	TaxonomyStatus map[string]string `json:"taxonomyStatus,omitempty"`
	ProcessingTime time.Duration     `json:"processingTime"`
	Error          string            `json:"error,omitempty"`
}

// RunInfo describes the policy a run used
type RunInfo struct {
	Dataset        string  `json:"dataset" yaml:"dataset"`
	Mode           string  `json:"mode" yaml:"mode"`
	HighConfidence float64 `json:"highConfidence" yaml:"high_confidence"`
	LowConfidence  float64 `json:"lowConfidence" yaml:"low_confidence"`
	TaxonomyFloor  float64 `json:"taxonomyFloor" yaml:"taxonomy_floor"`
}

// FieldStats counts outcomes for one field
type FieldStats struct {
	Correct    int `json:"correct"`
	NearMiss   int `json:"nearMiss"`
	Wrong      int `json:"wrong"`
	Unexpected int `json:"unexpected"`
	Withheld   int `json:"withheld"`
	Abstained  int `json:"abstained"`

	// Taxonomy status counts (kept, cleared_low_confidence, ...)
	Statuses map[string]int `json:"statuses,omitempty"`

	AverageScore float64   `json:"averageScore"`
	Scores       []float64 `json:"-"`
}

// Applied is the number of samples where a value was filled in.
func (s FieldStats) Applied() int {
	return s.Correct + s.NearMiss + s.Wrong + s.Unexpected
}

// Precision is the share of applied values that were correct.
func (s FieldStats) Precision() float64 {
	if s.Applied() == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Applied())
}

// Coverage is the share of confirmed values the resolver filled correctly.
func (s FieldStats) Coverage() float64 {
	expected := s.Correct + s.NearMiss + s.Wrong + s.Withheld
	if expected == 0 {
		return 0
	}
	return float64(s.Correct) / float64(expected)
}

func (s *FieldStats) add(match FieldMatch) {
	switch match.Outcome {
	case OutcomeCorrect:
		s.Correct++
	case OutcomeNearMiss:
		s.NearMiss++
	case OutcomeWrong:
		s.Wrong++
	case OutcomeUnexpected:
		s.Unexpected++
	case OutcomeWithheld:
		s.Withheld++
	case OutcomeAbstained:
		s.Abstained++
	}
	if match.Outcome != OutcomeAbstained {
		s.Scores = append(s.Scores, match.Score)
	}
	if match.Status != "" {
		if s.Statuses == nil {
			s.Statuses = make(map[string]int)
		}
		s.Statuses[match.Status]++
	}
}

// AggregateResults represents aggregated evaluation metrics
type AggregateResults struct {
	TotalRecords int `json:"totalRecords"`
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`

	Fields  map[string]*FieldStats `json:"fields"`
	Overall FieldStats             `json:"overall"`

	AverageProcessingTime time.Duration `json:"averageProcessingTime"`
	TotalProcessingTime   time.Duration `json:"totalProcessingTime"`

	Results []EvaluationResult `json:"results"`

	EvaluationDate time.Time `json:"evaluationDate"`
	Run            RunInfo   `json:"run"`
}

// AggregateEvaluationResults aggregates multiple evaluation results
func AggregateEvaluationResults(results []EvaluationResult, run RunInfo) *AggregateResults {
	agg := &AggregateResults{
		TotalRecords:   len(results),
		Fields:         make(map[string]*FieldStats),
		Results:        results,
		EvaluationDate: time.Now(),
		Run:            run,
	}

	var successDuration time.Duration
	for _, result := range results {
		agg.TotalProcessingTime += result.ProcessingTime
		if result.Error != "" {
			agg.FailureCount++
			continue
		}
		agg.SuccessCount++
		successDuration += result.ProcessingTime

		for _, match := range result.Fields {
			stats, ok := agg.Fields[match.Field]
			if !ok {
				stats = &FieldStats{}
				agg.Fields[match.Field] = stats
			}
			stats.add(match)
			agg.Overall.add(match)
		}
	}

	for _, stats := range agg.Fields {
		stats.AverageScore = calculateAverage(stats.Scores)
	}
	agg.Overall.AverageScore = calculateAverage(agg.Overall.Scores)
	if agg.SuccessCount > 0 {
		agg.AverageProcessingTime = successDuration / time.Duration(agg.SuccessCount)
	}

	return agg
}

// FieldNames returns the evaluated field names in sorted order
func (a *AggregateResults) FieldNames() []string {
	names := make([]string, 0, len(a.Fields))
	for name := range a.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func calculateAverage(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, score := range scores {
		sum += score
	}
	return sum / float64(len(scores))
}

// PrintSummary writes a human-readable summary of the evaluation
func (a *AggregateResults) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "SUGGESTION RESOLVER EVALUATION")
	fmt.Fprintf(w, "Evaluation Date: %s\n", a.EvaluationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Dataset: %s\n", a.Run.Dataset)
	fmt.Fprintf(w, "Mode: %s  low_confidence=%.2f  taxonomy_floor=%.2f\n", a.Run.Mode, a.Run.LowConfidence, a.Run.TaxonomyFloor)
	fmt.Fprintf(w, "Samples: %d (%d failed)\n\n", a.TotalRecords, a.FailureCount)

	rows := make([][]string, 0, len(a.Fields)+1)
	for _, name := range a.FieldNames() {
		rows = append(rows, statsRow(name, *a.Fields[name]))
	}
	rows = append(rows, statsRow("ALL", a.Overall))

	fmt.Fprintln(w, RenderTable(
		[]string{"Field", "Applied", "Correct", "Near", "Wrong", "Unexpected", "Withheld", "Precision", "Coverage"},
		rows,
		[]bool{false, true, true, true, true, true, true, true, true},
	))
}

func statsRow(name string, s FieldStats) []string {
	return []string{
		name,
		fmt.Sprint(s.Applied()),
		fmt.Sprint(s.Correct),
		fmt.Sprint(s.NearMiss),
		fmt.Sprint(s.Wrong),
		fmt.Sprint(s.Unexpected),
		fmt.Sprint(s.Withheld),
		fmt.Sprintf("%.1f%%", s.Precision()*100),
		fmt.Sprintf("%.1f%%", s.Coverage()*100),
	}
}

// RenderTable renders rows as a rounded table. alignRight marks numeric columns.
func RenderTable(headers []string, rows [][]string, alignRight []bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(alignRight) && alignRight[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// SaveToJSON saves the aggregate results to a JSON file
func (a *AggregateResults) SaveToJSON(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(a); err != nil {
		return fmt.Errorf("failed to encode results to JSON: %w", err)
	}

	return nil
}

// LoadFromJSON reads results written by SaveToJSON
func LoadFromJSON(path string) (*AggregateResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	var agg AggregateResults
	if err := json.Unmarshal(data, &agg); err != nil {
		return nil, fmt.Errorf("failed to parse results file: %w", err)
	}
	if agg.Fields == nil {
		agg.Fields = make(map[string]*FieldStats)
	}
	return &agg, nil
}

// SaveDetailedReport saves a per-sample report of every applied or withheld field
func (a *AggregateResults) SaveDetailedReport(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	separator := strings.Repeat("=", 80)
	fmt.Fprintf(file, "SUGGESTION RESOLVER DETAILED REPORT\n")
	fmt.Fprintf(file, "Generated: %s\n", a.EvaluationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(file, "Mode: %s, low_confidence: %.2f, taxonomy_floor: %.2f\n", a.Run.Mode, a.Run.LowConfidence, a.Run.TaxonomyFloor)
	fmt.Fprintf(file, "%s\n\n", separator)

	dash := strings.Repeat("-", 80)
	for i, result := range a.Results {
		fmt.Fprintf(file, "SAMPLE %d: %s (%s)\n", i+1, result.SampleID, result.Category)
		fmt.Fprintf(file, "%s\n", dash)

		if result.Error != "" {
			fmt.Fprintf(file, "ERROR: %s\n\n", result.Error)
			continue
		}
		for _, m := range result.Fields {
			if m.Outcome == OutcomeAbstained {
				continue
			}
			fmt.Fprintf(file, "  %-14s %-10s expected=%q actual=%q", m.Field, m.Outcome, m.Expected, m.Actual)
			if m.Status != "" {
				fmt.Fprintf(file, " status=%s", m.Status)
			}
			fmt.Fprintln(file)
		}
		fmt.Fprintln(file)
	}

	return nil
}
