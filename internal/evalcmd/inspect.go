package evalcmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cardledger/cardintake/internal/eval/dataset"
	"github.com/cardledger/cardintake/internal/eval/metrics"
	"github.com/cardledger/cardintake/internal/models"
)

type inspectOptions struct {
	Limit       int
	Interactive bool
	ShowPool    bool
	ID          string
}

func executeInspect(ctx context.Context, in io.Reader, out io.Writer, run RunOptions, opts inspectOptions) error {
	loader, err := dataset.LoadOrDownload(ctx, run.Dataset, dataset.DownloadConfig{CacheDir: run.CacheDir, Token: run.Token})
	if err != nil {
		return err
	}

	var samples []dataset.Sample
	if opts.ID != "" {
		samples, err = loader.LoadWithFilter(func(s *dataset.Sample) bool { return s.ID == opts.ID })
	} else {
		samples, err = loader.LoadSample(opts.Limit)
	}
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	if opts.ID != "" && len(samples) == 0 {
		return fmt.Errorf("sample %q not found in %s", opts.ID, run.Dataset)
	}

	fmt.Fprintf(out, "Loaded %d samples from %s\n", len(samples), run.Dataset)
	fmt.Fprintln(out, strings.Repeat("=", 80))

	reader := bufio.NewReader(in)
	for i := range samples {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nInspection interrupted.")
			return nil
		default:
		}

		fmt.Fprintf(out, "SAMPLE %d/%d\n", i+1, len(samples))
		printSample(out, &samples[i], opts.ShowPool)

		if !opts.Interactive {
			fmt.Fprintln(out)
			continue
		}
		fmt.Fprint(out, "Press Enter to continue to next sample (or Ctrl+C to quit)...")

		inputCh := make(chan struct{})
		go func() {
			_, _ = reader.ReadString('\n')
			close(inputCh)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nInspection interrupted.")
			return nil
		case <-inputCh:
			fmt.Fprintln(out)
		}
	}

	return nil
}

func printSample(out io.Writer, s *dataset.Sample, showPool bool) {
	fmt.Fprintf(out, "ID:        %s\n", s.ID)
	fmt.Fprintf(out, "Category:  %s\n", s.Category)
	if len(s.Draft) > 0 {
		parts := make([]string, 0, len(s.Draft))
		for _, fv := range s.Draft {
			parts = append(parts, fv.Field+"="+fv.Value)
		}
		fmt.Fprintf(out, "Draft:     %s\n", strings.Join(parts, ", "))
	}
	if len(s.Touched) > 0 {
		fmt.Fprintf(out, "Touched:   %s\n", strings.Join(s.Touched, ", "))
	}
	if len(s.Hints) > 0 {
		fmt.Fprintf(out, "Hints:     %s\n", strings.Join(s.Hints, " | "))
	}

	rows := make([][]string, 0, len(s.Readings))
	for _, r := range s.Readings {
		rows = append(rows, []string{r.Field, r.Value, fmt.Sprintf("%.2f", r.Confidence), s.Expected(models.Field(r.Field))})
	}
	for _, fv := range s.Truth {
		if !hasReading(s, fv.Field) {
			rows = append(rows, []string{fv.Field, "", "", fv.Value})
		}
	}
	fmt.Fprintln(out, metrics.RenderTable([]string{"Field", "OCR", "Confidence", "Confirmed"}, rows, []bool{false, false, true, false}))

	if !showPool {
		return
	}
	if len(s.Sets) == 0 {
		fmt.Fprintln(out, "Pool:      none")
		return
	}
	sets := make([]string, 0, len(s.Sets))
	for _, set := range s.Sets {
		sets = append(sets, set.Name)
	}
	fmt.Fprintf(out, "Sets:      %s\n", strings.Join(sets, "; "))
	fmt.Fprintf(out, "Inserts:   %s\n", labels(s.Inserts))
	fmt.Fprintf(out, "Parallels: %s\n", labels(s.Parallels))
}

func hasReading(s *dataset.Sample, field string) bool {
	for _, r := range s.Readings {
		if r.Field == field {
			return true
		}
	}
	return false
}

func labels(opts []dataset.PoolLabel) string {
	if len(opts) == 0 {
		return "none"
	}
	names := make([]string, 0, len(opts))
	for _, o := range opts {
		names = append(names, o.Label)
	}
	return strings.Join(names, "; ")
}
