package cmd

import (
	"fmt"
	"log/slog"

	"github.com/cardledger/cardintake/internal/capture"
	"github.com/cardledger/cardintake/internal/config"
	"github.com/cardledger/cardintake/internal/ocr"
	"github.com/cardledger/cardintake/internal/pool"
	"github.com/cardledger/cardintake/internal/storage"
	"github.com/cardledger/cardintake/internal/suggest"
	"github.com/cardledger/cardintake/internal/teach"
	"github.com/cardledger/cardintake/internal/upload"
)

// newPoolProvider prefers the live pool service and falls back to a local
// snapshot. Either is wrapped in the scope cache.
func newPoolProvider(cfg *config.Config) (pool.Provider, error) {
	var provider pool.Provider
	switch {
	case cfg.Pool.URL != "":
		provider = pool.NewHTTPProvider(cfg.Pool.URL, cfg.Pool.APIKey)
	case cfg.Pool.SnapshotPath != "":
		provider = pool.NewSnapshotProvider(cfg.Pool.SnapshotPath)
	default:
		return nil, fmt.Errorf("no option pool configured: set pool.url or pool.snapshot_path")
	}
	if ttl := cfg.CacheTTL(); ttl > 0 {
		provider = pool.NewCachedProvider(provider, ttl)
	}
	return provider, nil
}

func newOCRAdapter(cfg *config.Config) (ocr.Adapter, error) {
	switch cfg.OCR.Provider {
	case config.OCRProviderVision:
		provider, err := ocr.NewProvider(cfg.OCR.VisionProvider, ocr.ProviderSettings{
			OllamaURL: cfg.OCR.OllamaURL,
			OpenAIKey: cfg.OCR.OpenAIKey,
			GeminiKey: cfg.OCR.GeminiKey,
		})
		if err != nil {
			return nil, err
		}
		model := cfg.OCR.Model
		if model == "" {
			model = ocr.DefaultModel(cfg.OCR.VisionProvider)
		}
		adapter := ocr.NewVisionAdapter(provider, model)
		adapter.MinConfidence = cfg.OCR.MinConfidence
		return adapter, nil
	case config.OCRProviderRegions:
		if cfg.OCR.URL == "" {
			return nil, fmt.Errorf("ocr.url is required for the regions provider")
		}
		adapter := ocr.NewRegionAdapter(ocr.NewTokenClient(cfg.OCR.URL, cfg.OCR.Token))
		adapter.MinConfidence = cfg.OCR.MinConfidence
		return adapter, nil
	default:
		if cfg.OCR.URL == "" {
			return nil, fmt.Errorf("ocr.url is required for the http provider")
		}
		return ocr.NewHTTPAdapter(cfg.OCR.URL, cfg.OCR.Token), nil
	}
}

func newEngine(cfg *config.Config, logger *slog.Logger) (*suggest.Engine, error) {
	adapter, err := newOCRAdapter(cfg)
	if err != nil {
		return nil, err
	}
	poller := suggest.NewPoller(adapter)
	poller.Retries = cfg.OCR.PollRetries
	poller.Delay = cfg.PollDelay()
	return suggest.NewEngine(suggest.NewResolver(cfg.Policy), poller, logger), nil
}

// newTemplateStore uses the shared template service when configured and the
// local database otherwise.
func newTemplateStore(cfg *config.Config, db *storage.DB) teach.Store {
	if cfg.Teach.StoreURL != "" {
		return teach.NewHTTPStore(cfg.Teach.StoreURL, cfg.Teach.APIKey)
	}
	return db.Templates()
}

// newCaptureDeps wires the collaborators shared by every capture session.
func newCaptureDeps(cfg *config.Config, db *storage.DB, logger *slog.Logger) (capture.Deps, error) {
	deps := capture.Deps{
		Templates: newTemplateStore(cfg, db),
		Queue:     db.Queue(),
		Debounce:  cfg.Debounce(),
		Logger:    logger,
	}

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return capture.Deps{}, err
	}
	deps.Engine = engine

	provider, err := newPoolProvider(cfg)
	if err != nil {
		logger.Warn("Option pool unavailable, taxonomy suggestions will be withheld", "err", err)
	} else {
		deps.Pool = provider
	}

	if cfg.Upload.URL != "" {
		deps.Uploads = upload.NewDispatcher(upload.NewHTTPTransport(cfg.Upload.URL, cfg.Upload.APIKey), cfg.Upload.Concurrency, logger)
	} else {
		logger.Warn("Photo upload not configured, cards cannot be submitted")
	}

	if cfg.Metadata.URL != "" {
		deps.Metadata = capture.NewHTTPMetadataStore(cfg.Metadata.URL, cfg.Metadata.APIKey)
	}
	if cfg.Metadata.PostProcessURL != "" {
		deps.PostProcessor = capture.NewHTTPPostProcessor(cfg.Metadata.PostProcessURL, cfg.Metadata.APIKey)
	}

	return deps, nil
}
