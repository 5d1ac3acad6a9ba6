package evalcmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cardledger/cardintake/internal/eval/metrics"
)

func executeReport(out io.Writer, resultsPath, format string) error {
	agg, err := metrics.LoadFromJSON(resultsPath)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	switch format {
	case "text":
		return printTextReport(out, agg)
	case "json":
		return printJSONReport(out, agg)
	case "csv":
		return printCSVReport(out, agg)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printTextReport(out io.Writer, agg *metrics.AggregateResults) error {
	agg.PrintSummary(out)

	fmt.Fprintln(out, "\nIncorrect suggestions:")
	fmt.Fprintln(out, strings.Repeat("=", 80))

	count := 0
	for _, result := range agg.Results {
		if result.Error != "" {
			fmt.Fprintf(out, "[%s] error: %s\n", result.SampleID, result.Error)
			continue
		}
		for _, m := range result.Fields {
			switch m.Outcome {
			case metrics.OutcomeWrong, metrics.OutcomeNearMiss, metrics.OutcomeUnexpected:
				count++
				fmt.Fprintf(out, "[%s] %s: %s expected=%q actual=%q\n",
					result.SampleID, m.Field, m.Outcome, truncate(m.Expected, 40), truncate(m.Actual, 40))
			}
		}
	}
	if count == 0 {
		fmt.Fprintln(out, "none")
	}
	return nil
}

func printJSONReport(out io.Writer, agg *metrics.AggregateResults) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(agg)
}

func printCSVReport(out io.Writer, agg *metrics.AggregateResults) error {
	writer := csv.NewWriter(out)

	header := []string{"sample_id", "category", "field", "outcome", "expected", "actual", "score", "status"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, result := range agg.Results {
		if result.Error != "" {
			continue
		}
		for _, m := range result.Fields {
			row := []string{
				result.SampleID,
				result.Category,
				m.Field,
				string(m.Outcome),
				m.Expected,
				m.Actual,
				fmt.Sprintf("%.3f", m.Score),
				m.Status,
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// truncate shortens s to maxLen runes
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
