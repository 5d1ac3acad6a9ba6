package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()

	var err error
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if strings.TrimSpace(c.Server.DataDir) == "" {
		c.Server.DataDir = defaultDataDir
	}
	if c.Server.DataDir, err = expandPath(c.Server.DataDir); err != nil {
		return fmt.Errorf("server.data_dir: %w", err)
	}
	if c.Pool.SnapshotPath, err = expandPath(strings.TrimSpace(c.Pool.SnapshotPath)); err != nil {
		return fmt.Errorf("pool.snapshot_path: %w", err)
	}

	c.OCR.Provider = strings.ToLower(strings.TrimSpace(c.OCR.Provider))
	if c.OCR.Provider == "" {
		c.OCR.Provider = OCRProviderHTTP
	}
	c.OCR.VisionProvider = strings.ToLower(strings.TrimSpace(c.OCR.VisionProvider))
	if c.OCR.VisionProvider == "" {
		c.OCR.VisionProvider = "ollama"
	}
	c.OCR.URL = trimURL(c.OCR.URL)
	c.OCR.OllamaURL = trimURL(c.OCR.OllamaURL)
	if c.OCR.OllamaURL == "" {
		c.OCR.OllamaURL = defaultOllamaURL
	}

	c.Pool.URL = trimURL(c.Pool.URL)
	c.Upload.URL = trimURL(c.Upload.URL)
	c.Metadata.URL = trimURL(c.Metadata.URL)
	c.Metadata.PostProcessURL = trimURL(c.Metadata.PostProcessURL)
	if c.Metadata.PostProcessURL == "" {
		c.Metadata.PostProcessURL = c.Metadata.URL
	}
	c.Teach.StoreURL = trimURL(c.Teach.StoreURL)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// applyEnv lets deployment environment variables win over the file.
func (c *Config) applyEnv() {
	overrides := []struct {
		name   string
		target *string
	}{
		{"CARDINTAKE_ADDR", &c.Server.Addr},
		{"CARDINTAKE_DATA_DIR", &c.Server.DataDir},
		{"OCR_URL", &c.OCR.URL},
		{"OCR_SERVICE_TOKEN", &c.OCR.Token},
		{"CATALOGING_PROVIDER", &c.OCR.VisionProvider},
		{"CATALOGING_MODEL", &c.OCR.Model},
		{"OLLAMA_URL", &c.OCR.OllamaURL},
		{"OPENAI_API_KEY", &c.OCR.OpenAIKey},
		{"GEMINI_API_KEY", &c.OCR.GeminiKey},
		{"POOL_URL", &c.Pool.URL},
		{"UPLOAD_URL", &c.Upload.URL},
		{"METADATA_URL", &c.Metadata.URL},
		{"TEACH_STORE_URL", &c.Teach.StoreURL},
		{"LOG_LEVEL", &c.Logging.Level},
	}
	for _, o := range overrides {
		if value, ok := os.LookupEnv(o.name); ok && strings.TrimSpace(value) != "" {
			*o.target = strings.TrimSpace(value)
		}
	}
}

func trimURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}
