package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cardledger/cardintake/internal/suggest"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the bind address and local data directory.
type Server struct {
	Addr    string `toml:"addr"`
	DataDir string `toml:"data_dir"`
}

// OCR selects and configures the suggestion backend.
type OCR struct {
	Provider       string  `toml:"provider"`
	URL            string  `toml:"url"`
	Token          string  `toml:"token"`
	VisionProvider string  `toml:"vision_provider"`
	Model          string  `toml:"model"`
	OllamaURL      string  `toml:"ollama_url"`
	OpenAIKey      string  `toml:"openai_api_key"`
	GeminiKey      string  `toml:"gemini_api_key"`
	PollRetries    int     `toml:"poll_retries"`
	PollDelayMS    int     `toml:"poll_delay_ms"`
	DebounceMS     int     `toml:"debounce_ms"`
	MinConfidence  float64 `toml:"min_confidence"`
}

// Pool configures the option pool source.
type Pool struct {
	URL             string `toml:"url"`
	APIKey          string `toml:"api_key"`
	SnapshotPath    string `toml:"snapshot_path"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// Upload configures the photo store.
type Upload struct {
	URL         string `toml:"url"`
	APIKey      string `toml:"api_key"`
	Concurrency int    `toml:"concurrency"`
}

// Metadata configures the classification and post-process collaborators.
type Metadata struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	PostProcessURL string `toml:"post_process_url"`
}

// Teach configures where teach templates live.
type Teach struct {
	StoreURL string `toml:"store_url"`
	APIKey   string `toml:"api_key"`
}

// Logging contains the log level and format.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the full cardintake configuration.
type Config struct {
	Server   Server         `toml:"server"`
	OCR      OCR            `toml:"ocr"`
	Pool     Pool           `toml:"pool"`
	Upload   Upload         `toml:"upload"`
	Metadata Metadata       `toml:"metadata"`
	Teach    Teach          `toml:"teach"`
	Policy   suggest.Policy `toml:"policy"`
	Logging  Logging        `toml:"logging"`
}

// OCR providers.
const (
	OCRProviderHTTP    = "http"
	OCRProviderVision  = "vision"
	OCRProviderRegions = "regions"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			Addr:    defaultAddr,
			DataDir: defaultDataDir,
		},
		OCR: OCR{
			Provider:       OCRProviderHTTP,
			VisionProvider: "ollama",
			OllamaURL:      defaultOllamaURL,
			PollRetries:    suggest.DefaultPollRetries,
			PollDelayMS:    int(suggest.DefaultPollDelay / time.Millisecond),
			DebounceMS:     defaultDebounceMS,
			MinConfidence:  defaultMinConfidence,
		},
		Pool: Pool{
			CacheTTLSeconds: defaultCacheTTLSeconds,
		},
		Upload: Upload{
			Concurrency: defaultUploadConcurrency,
		},
		Policy: suggest.DefaultPolicy(),
		Logging: Logging{
			Level: "info",
		},
	}
}

const (
	defaultAddr              = ":8888"
	defaultDataDir           = "~/.local/share/cardintake"
	defaultOllamaURL         = "http://localhost:11434"
	defaultDebounceMS        = 750
	defaultMinConfidence     = 0.7
	defaultCacheTTLSeconds   = 300
	defaultUploadConcurrency = 3
)

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cardintake/config.toml")
}

// Load reads the config at path (or the default locations when empty),
// applies environment overrides and validates the result. It reports the
// resolved path and whether a file was found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("failed to stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("cardintake.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// CreateSample writes the commented sample config to path. Existing files
// are left alone.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("failed to write sample config: %w", err)
	}
	return nil
}

// PollDelay returns the pending retry delay.
func (c *Config) PollDelay() time.Duration {
	return time.Duration(c.OCR.PollDelayMS) * time.Millisecond
}

// Debounce returns the delay between the tilt upload and the suggestion fetch.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.OCR.DebounceMS) * time.Millisecond
}

// CacheTTL returns how long a fetched option pool stays cached.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Pool.CacheTTLSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
