package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCompareField(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		actual   string
		applied  bool
		outcome  Outcome
	}{
		{"exact", "Topps Chrome", "Topps Chrome", true, OutcomeCorrect},
		{"case and punctuation", "Gold Refractor", "gold-refractor", true, OutcomeCorrect},
		{"diacritics", "Pokémon", "Pokemon", true, OutcomeCorrect},
		{"typo", "Refractor", "Refractr", true, OutcomeNearMiss},
		{"different value", "Prizm", "Select", true, OutcomeWrong},
		{"applied to empty", "", "Silver", true, OutcomeUnexpected},
		{"withheld", "Silver", "", false, OutcomeWithheld},
		{"abstained", "", "", false, OutcomeAbstained},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareField("parallel", tt.expected, tt.actual, tt.applied)
			if got.Outcome != tt.outcome {
				t.Errorf("Expected outcome %s, got %s (score %.2f)", tt.outcome, got.Outcome, got.Score)
			}
		})
	}
}

func TestCalculateSimilarity(t *testing.T) {
	if got := calculateSimilarity("kitten", "sitting"); got < 0.57 || got > 0.58 {
		t.Errorf("Expected ~0.571, got %.3f", got)
	}
	if got := calculateSimilarity("", "abc"); got != 0 {
		t.Errorf("Expected 0 for empty input, got %.3f", got)
	}
	if got := levenshteinDistance([]rune("héllo"), []rune("hello")); got != 1 {
		t.Errorf("Expected rune distance 1, got %d", got)
	}
}

func sampleResults() []EvaluationResult {
	return []EvaluationResult{
		{
			SampleID:       "a",
			ProcessingTime: 2 * time.Millisecond,
			Fields: []FieldMatch{
				CompareField("setName", "Prizm", "Prizm", true),
				CompareField("parallel", "Silver", "", false),
				CompareField("playerName", "LeBron James", "LeBron James", true),
			},
		},
		{
			SampleID:       "b",
			ProcessingTime: 4 * time.Millisecond,
			Fields: []FieldMatch{
				CompareField("setName", "Prizm", "Select", true),
				{Field: "parallel", Outcome: OutcomeAbstained, Status: "cleared_out_of_pool"},
			},
		},
		{SampleID: "c", Error: "bad sample", ProcessingTime: time.Millisecond},
	}
}

func TestAggregateEvaluationResults(t *testing.T) {
	agg := AggregateEvaluationResults(sampleResults(), RunInfo{Mode: "high", TaxonomyFloor: 0.8})

	if agg.TotalRecords != 3 || agg.SuccessCount != 2 || agg.FailureCount != 1 {
		t.Errorf("Expected 3/2/1 records, got %d/%d/%d", agg.TotalRecords, agg.SuccessCount, agg.FailureCount)
	}
	if agg.AverageProcessingTime != 3*time.Millisecond {
		t.Errorf("Expected 3ms average, got %s", agg.AverageProcessingTime)
	}

	set := agg.Fields["setName"]
	if set == nil || set.Correct != 1 || set.Wrong != 1 {
		t.Fatalf("Expected setName 1 correct 1 wrong, got %+v", set)
	}
	if set.Precision() != 0.5 {
		t.Errorf("Expected precision 0.5, got %.2f", set.Precision())
	}

	parallel := agg.Fields["parallel"]
	if parallel.Withheld != 1 || parallel.Abstained != 1 {
		t.Errorf("Expected 1 withheld 1 abstained, got %+v", parallel)
	}
	if parallel.Statuses["cleared_out_of_pool"] != 1 {
		t.Errorf("Expected status count, got %v", parallel.Statuses)
	}
	if parallel.Coverage() != 0 {
		t.Errorf("Expected zero coverage, got %.2f", parallel.Coverage())
	}

	if agg.Overall.Applied() != 3 || agg.Overall.Correct != 2 {
		t.Errorf("Expected overall 3 applied 2 correct, got %+v", agg.Overall)
	}
	if names := agg.FieldNames(); strings.Join(names, ",") != "parallel,playerName,setName" {
		t.Errorf("Expected sorted field names, got %v", names)
	}
}

func TestPrintSummary(t *testing.T) {
	agg := AggregateEvaluationResults(sampleResults(), RunInfo{Mode: "low", LowConfidence: 0.5})
	var buf bytes.Buffer
	agg.PrintSummary(&buf)

	out := buf.String()
	for _, want := range []string{"Mode: low", "setName", "ALL", "Precision", "50.0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}
}

func TestSaveAndLoadJSON(t *testing.T) {
	agg := AggregateEvaluationResults(sampleResults(), RunInfo{Dataset: "labels.jsonl", Mode: "high"})
	path := filepath.Join(t.TempDir(), "results.json")

	if err := agg.SaveToJSON(path); err != nil {
		t.Fatalf("SaveToJSON failed: %v", err)
	}
	loaded, err := LoadFromJSON(path)
	if err != nil {
		t.Fatalf("LoadFromJSON failed: %v", err)
	}
	if loaded.Run.Dataset != "labels.jsonl" {
		t.Errorf("Expected dataset labels.jsonl, got %q", loaded.Run.Dataset)
	}
	if loaded.Fields["setName"].Correct != 1 {
		t.Errorf("Expected setName stats to survive, got %+v", loaded.Fields["setName"])
	}
}

func TestSaveDetailedReport(t *testing.T) {
	agg := AggregateEvaluationResults(sampleResults(), RunInfo{Mode: "high"})
	path := filepath.Join(t.TempDir(), "report.txt")

	if err := agg.SaveDetailedReport(path); err != nil {
		t.Fatalf("SaveDetailedReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "ERROR: bad sample") {
		t.Error("Expected failed sample in report")
	}
	if !strings.Contains(content, "withheld") {
		t.Error("Expected withheld field in report")
	}
	if strings.Contains(content, "abstained") {
		t.Error("Expected abstained fields to be left out")
	}
}
