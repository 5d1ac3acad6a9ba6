package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validatePolicy(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateOCR() error {
	switch c.OCR.Provider {
	case OCRProviderHTTP, OCRProviderRegions:
	case OCRProviderVision:
		switch c.OCR.VisionProvider {
		case "ollama", "openai", "gemini":
		default:
			return fmt.Errorf("ocr.vision_provider %q is not supported (ollama, openai, gemini)", c.OCR.VisionProvider)
		}
	default:
		return fmt.Errorf("ocr.provider %q is not supported (http, vision, regions)", c.OCR.Provider)
	}
	if c.OCR.PollRetries < 0 {
		return errors.New("ocr.poll_retries must not be negative")
	}
	if c.OCR.PollDelayMS < 0 || c.OCR.DebounceMS < 0 {
		return errors.New("ocr.poll_delay_ms and ocr.debounce_ms must not be negative")
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 1 {
		return errors.New("ocr.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.Concurrency < 1 || c.Upload.Concurrency > 10 {
		return errors.New("upload.concurrency must be between 1 and 10")
	}
	return nil
}

func (c *Config) validatePool() error {
	if c.Pool.CacheTTLSeconds < 0 {
		return errors.New("pool.cache_ttl_seconds must not be negative")
	}
	return nil
}

func (c *Config) validatePolicy() error {
	p := c.Policy
	for name, v := range map[string]float64{
		"policy.high_confidence": p.HighConfidence,
		"policy.low_confidence":  p.LowConfidence,
		"policy.taxonomy_floor":  p.TaxonomyFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if p.LowConfidence < p.HighConfidence {
		return errors.New("policy.low_confidence must not be below policy.high_confidence")
	}
	if p.Matcher.CatalogMinScore <= 0 || p.Matcher.VariantMinScore <= 0 {
		return errors.New("policy.matcher min scores must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported (debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (text, json)", c.Logging.Format)
	}
	return nil
}
