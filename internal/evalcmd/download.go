package evalcmd

import (
	"context"
	"fmt"
	"io"

	"github.com/cardledger/cardintake/internal/eval/dataset"
)

func executeDownload(ctx context.Context, out io.Writer, url string, config dataset.DownloadConfig, clearCache bool) error {
	downloader := dataset.NewDownloader(config)
	if clearCache {
		if err := downloader.ClearCache(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintln(out, "Dataset cache cleared")
		if url == "" {
			return nil
		}
	}

	path, err := downloader.Download(ctx, url)
	if err != nil {
		return err
	}

	samples, err := dataset.NewLoader(path).LoadSample(1)
	if err != nil {
		return fmt.Errorf("downloaded file is not a readable dataset: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("downloaded dataset %s is empty", path)
	}

	fmt.Fprintf(out, "Dataset cached at: %s\n", path)
	return nil
}
