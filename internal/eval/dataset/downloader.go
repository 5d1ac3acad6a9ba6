package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cardledger/cardintake/internal/remote"
)

// DefaultCacheDir holds downloaded datasets
const DefaultCacheDir = "~/.cache/cardintake/datasets"

// DownloadConfig configures dataset downloading
type DownloadConfig struct {
	CacheDir      string
	ForceDownload bool
	Token         string // bearer token for private dataset hosts
	Client        *http.Client
}

// Downloader fetches labeled datasets over HTTP and caches them on disk
type Downloader struct {
	config DownloadConfig
}

// NewDownloader creates a new dataset downloader
func NewDownloader(config DownloadConfig) *Downloader {
	if config.CacheDir == "" {
		config.CacheDir = DefaultCacheDir
	}
	if strings.HasPrefix(config.CacheDir, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			config.CacheDir = filepath.Join(homeDir, config.CacheDir[1:])
		}
	}
	if config.Client == nil {
		config.Client = http.DefaultClient
	}

	return &Downloader{
		config: config,
	}
}

// Download fetches rawURL unless it is already cached and returns the local path.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	cachedPath, err := d.GetCachePath(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cachedPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	if !d.config.ForceDownload {
		if _, err := os.Stat(cachedPath); err == nil {
			slog.Info("Using cached dataset", "path", cachedPath)
			return cachedPath, nil
		}
	}

	slog.Info("Downloading dataset", "url", rawURL)
	if err := d.downloadFile(ctx, rawURL, cachedPath); err != nil {
		return "", fmt.Errorf("failed to download dataset: %w", err)
	}

	slog.Info("Dataset downloaded successfully", "path", cachedPath)
	return cachedPath, nil
}

func (d *Downloader) downloadFile(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if d.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.Token)
	}

	resp, err := d.config.Client.Do(req)
	if err != nil {
		return remote.Wrap("dataset", "download", err)
	}
	defer resp.Body.Close()

	if err := remote.CheckResponse("dataset", resp); err != nil {
		return err
	}

	tempPath := destPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("download failed: %w", err)
	}
	slog.Debug("Dataset bytes written", "bytes", written, "path", tempPath)

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move file: %w", err)
	}

	return nil
}

// GetCachePath returns where rawURL is cached. The file keeps its extension
// so the loader can pick the format.
func (d *Downloader) GetCachePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid dataset url %q", rawURL)
	}
	sum := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(sum[:8]) + "-" + path.Base(u.Path)
	return filepath.Join(d.config.CacheDir, u.Host, name), nil
}

// ClearCache removes all cached dataset files
func (d *Downloader) ClearCache() error {
	slog.Info("Clearing cache", "path", d.config.CacheDir)
	return os.RemoveAll(d.config.CacheDir)
}

// LoadOrDownload returns a loader for a local path or a downloaded URL
func LoadOrDownload(ctx context.Context, location string, config DownloadConfig) (*Loader, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return NewLoader(location), nil
	}

	datasetPath, err := NewDownloader(config).Download(ctx, location)
	if err != nil {
		return nil, err
	}
	return NewLoader(datasetPath), nil
}
