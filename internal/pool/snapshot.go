package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
)

// Row kinds in a pool snapshot
const (
	KindSet      = "set"
	KindInsert   = "insert"
	KindParallel = "parallel"
)

// SnapshotRow is one line of an exported catalog snapshot. Set rows describe
// an approved product set; insert and parallel rows attach a variant label to
// the set named by SetID.
type SnapshotRow struct {
	SetID        string `json:"set_id" parquet:"set_id"`
	SetName      string `json:"set_name" parquet:"set_name"`
	Year         string `json:"year" parquet:"year"`
	Manufacturer string `json:"manufacturer" parquet:"manufacturer"`
	Sport        string `json:"sport" parquet:"sport"`
	Kind         string `json:"kind" parquet:"kind"`
	Label        string `json:"label" parquet:"label"`
	Count        int    `json:"count" parquet:"count"`
}

// SnapshotProvider answers pool queries from a local Parquet or JSONL export
// of the approved catalog.
type SnapshotProvider struct {
	path string

	once sync.Once
	rows []SnapshotRow
	err  error
}

// NewSnapshotProvider creates a provider over the snapshot file at path
func NewSnapshotProvider(path string) *SnapshotProvider {
	return &SnapshotProvider{path: path}
}

// Fetch filters the snapshot by scope and aggregates variant labels.
func (s *SnapshotProvider) Fetch(ctx context.Context, scope Scope) (*Pool, error) {
	if !scope.Complete() {
		return nil, ErrNoScope
	}
	s.once.Do(func() {
		s.rows, s.err = LoadSnapshot(s.path)
	})
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return BuildPool(scope, s.rows), nil
}

// BuildPool aggregates snapshot rows matching scope into a Pool. Options keep
// first-seen order; counts are summed and set ids merged per label.
func BuildPool(scope Scope, rows []SnapshotRow) *Pool {
	p := &Pool{Scope: scope}

	inScope := make(map[string]struct{})
	for _, r := range rows {
		if r.Kind != KindSet || !rowMatches(scope, r) {
			continue
		}
		if _, dup := inScope[r.SetID]; dup {
			continue
		}
		inScope[r.SetID] = struct{}{}
		p.ProductSets = append(p.ProductSets, ProductSet{ID: r.SetID, Name: r.SetName})
	}

	inserts := newOptionIndex()
	parallels := newOptionIndex()
	for _, r := range rows {
		if _, ok := inScope[r.SetID]; !ok || strings.TrimSpace(r.Label) == "" {
			continue
		}
		switch r.Kind {
		case KindInsert:
			inserts.add(r)
		case KindParallel:
			parallels.add(r)
		}
	}
	p.InsertOptions = inserts.options
	p.ParallelOptions = parallels.options
	p.Summary = Summary{
		ApprovedSetCount: len(p.ProductSets),
		VariantCount:     len(p.InsertOptions) + len(p.ParallelOptions),
	}
	return p
}

func rowMatches(scope Scope, r SnapshotRow) bool {
	if !strings.EqualFold(strings.TrimSpace(r.Year), strings.TrimSpace(scope.Year)) {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(r.Manufacturer), strings.TrimSpace(scope.Manufacturer)) {
		return false
	}
	if scope.Sport != "" && r.Sport != "" && !strings.EqualFold(r.Sport, scope.Sport) {
		return false
	}
	if scope.ProductLine != "" && !strings.EqualFold(strings.TrimSpace(r.SetName), strings.TrimSpace(scope.ProductLine)) {
		return false
	}
	return true
}

type optionIndex struct {
	byLabel map[string]int
	options []Option
}

func newOptionIndex() *optionIndex {
	return &optionIndex{byLabel: make(map[string]int)}
}

func (ix *optionIndex) add(r SnapshotRow) {
	key := strings.ToLower(strings.TrimSpace(r.Label))
	i, ok := ix.byLabel[key]
	if !ok {
		ix.byLabel[key] = len(ix.options)
		ix.options = append(ix.options, Option{Label: strings.TrimSpace(r.Label), SetIDs: []string{r.SetID}, Count: r.Count})
		return
	}
	opt := &ix.options[i]
	opt.Count += r.Count
	for _, id := range opt.SetIDs {
		if id == r.SetID {
			return
		}
	}
	opt.SetIDs = append(opt.SetIDs, r.SetID)
}

// LoadSnapshot reads all rows from a .parquet or .jsonl snapshot.
func LoadSnapshot(path string) ([]SnapshotRow, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".parquet":
		return loadParquet(path)
	case ".jsonl", ".json":
		return loadJSONL(path)
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %s (supported: .parquet, .jsonl)", ext)
	}
}

func loadJSONL(path string) ([]SnapshotRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var rows []SnapshotRow
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row SnapshotRow
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading snapshot: %w", err)
	}

	slog.Debug("Loaded option pool snapshot", "path", path, "rows", len(rows))
	return rows, nil
}

func loadParquet(path string) ([]SnapshotRow, error) {
	file, err := os.Open(path)
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

	reader := parquet.NewGenericReader[SnapshotRow](pf)
	defer reader.Close()

	var rows []SnapshotRow
	batch := make([]SnapshotRow, 128)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Loaded option pool snapshot", "path", path, "rows", len(rows), "row_groups", len(pf.RowGroups()))
	return rows, nil
}
