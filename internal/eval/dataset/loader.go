package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Loader reads labeled intake samples from disk
type Loader struct {
	datasetPath string
}

// NewLoader creates a new dataset loader
func NewLoader(datasetPath string) *Loader {
	return &Loader{
		datasetPath: datasetPath,
	}
}

// Load loads every sample from a dataset file (JSONL or Parquet)
func (l *Loader) Load() ([]Sample, error) {
	return l.LoadSample(0)
}

// LoadSample loads at most limit samples; a limit of zero or less loads all.
func (l *Loader) LoadSample(limit int) ([]Sample, error) {
	ext := strings.ToLower(filepath.Ext(l.datasetPath))

	switch ext {
	case ".parquet":
		return l.loadParquet(limit)
	case ".jsonl", ".json":
		return l.loadJSONL(limit)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
}

// LoadWithFilter loads the samples accepted by filterFn
func (l *Loader) LoadWithFilter(filterFn func(*Sample) bool) ([]Sample, error) {
	samples, err := l.Load()
	if err != nil {
		return nil, err
	}
	filtered := samples[:0]
	for i := range samples {
		if filterFn(&samples[i]) {
			filtered = append(filtered, samples[i])
		}
	}
	return filtered, nil
}

func (l *Loader) loadJSONL(limit int) ([]Sample, error) {
	slog.Debug("Opening JSONL file", "path", l.datasetPath)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	return readJSONL(file, limit)
}

func readJSONL(r io.Reader, limit int) ([]Sample, error) {
	var samples []Sample
	scanner := bufio.NewScanner(r)

	// Readings and pools can make long lines
	const maxCapacity = 10 * 1024 * 1024
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		if limit > 0 && len(samples) >= limit {
			break
		}
		lineNum++
		line := scanner.Bytes()

		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var sample Sample
		if err := json.Unmarshal(line, &sample); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		if sample.ID == "" {
			sample.ID = fmt.Sprintf("line-%d", lineNum)
		}
		samples = append(samples, sample)

		if lineNum%1000 == 0 {
			slog.Debug("Reading JSONL", "lines_read", lineNum)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}

	slog.Debug("Finished reading JSONL file", "total_samples", len(samples), "total_lines", lineNum)

	return samples, nil
}

func (l *Loader) loadParquet(limit int) ([]Sample, error) {
	slog.Debug("Opening Parquet file", "path", l.datasetPath, "sample_limit", limit)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet file opened successfully", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[Sample](pf)
	defer reader.Close()

	var samples []Sample

	batchNum := 0
	for limit <= 0 || len(samples) < limit {
		// fresh batch each read; rows keep references into their slices
		rows := make([]Sample, 128)
		n, err := reader.Read(rows)
		if n > 0 {
			batchNum++
			if limit > 0 && n > limit-len(samples) {
				n = limit - len(samples)
			}
			samples = append(samples, rows[:n]...)
			slog.Debug("Read batch from Parquet", "batch", batchNum, "rows_in_batch", n, "total_rows_read", len(samples))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Finished reading Parquet file", "total_samples", len(samples), "total_batches", batchNum)

	return samples, nil
}
