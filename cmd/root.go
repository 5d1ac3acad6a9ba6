package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cardledger/cardintake/internal/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// loadConfig reads the configuration, applies the logging flags and installs
// the default logger.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, path, exists, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(o.logLevel)
	}
	if o.logFormat != "" {
		cfg.Logging.Format = strings.ToLower(o.logFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(newLogger(os.Stderr, cfg.Logging))
	if exists {
		slog.Debug("Configuration loaded", "path", path)
	} else {
		slog.Debug("No config file found, using defaults", "path", path)
	}
	return cfg, nil
}

// newLogger builds the process logger. An empty format picks text on a
// terminal and JSON otherwise.
func newLogger(w io.Writer, logging config.Logging) *slog.Logger {
	var level slog.Level
	switch logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	format := logging.Format
	if format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cardintake",
		Short: "Trading card intake with OCR-backed classification suggestions",
		Long: `Cardintake runs the capture workflow for trading card intake: photos are
uploaded as they are taken, an OCR backend proposes field values, and only values
that match the approved catalog option pool are applied to taxonomy fields.

Operators can teach the OCR where fields live on a card by drawing regions, which
are saved per set and layout and replayed for the next card of that set.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			switch strings.ToLower(opts.logFormat) {
			case "", "text", "json":
			default:
				return fmt.Errorf("invalid --log-format %q (text, json)", opts.logFormat)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ~/.config/cardintake/config.toml or ./cardintake.toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format override (text, json)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newTeachCmd(opts))
	cmd.AddCommand(newQueueCmd(opts))
	cmd.AddCommand(newPoolCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newEvalCmd(opts))

	return cmd
}
