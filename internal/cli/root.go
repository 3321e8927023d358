package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nosark/polygon-io-playground/config"
	"github.com/nosark/polygon-io-playground/internal/logging"
	"github.com/nosark/polygon-io-playground/polygon"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

// rootOptions holds the persistent flags and what PersistentPreRunE builds
// from them.
type rootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	LogFormat  string

	cfg *config.Config
	log *slog.Logger
}

func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "candles",
		Short:         "Build OHLC candles from polygon.io trades",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&ro.EnvFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before the config")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().StringVar(&ro.LogFormat, "log-format", "", "Log format: text|json (overrides config)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ro.setup(cmd)
	}

	// Subcommands
	cmd.AddCommand(
		newBuildCmd(ro),
		newTradesCmd(ro),
		newLastCmd(ro),
		newPrevCloseCmd(ro),
		newBarsCmd(ro),
		newConfigCmd(ro),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "candles %s\n", Version)
		},
	})

	return cmd
}

func (ro *rootOptions) setup(cmd *cobra.Command) error {
	// The default env file is optional; one named on the command line is not.
	if err := config.LoadEnvFile(ro.EnvFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	cfg, err := config.Load(ro.ConfigPath)
	if err != nil {
		return err
	}
	if ro.LogLevel != "" {
		cfg.Log.Level = ro.LogLevel
	}
	if ro.LogFormat != "" {
		cfg.Log.Format = ro.LogFormat
	}

	log, err := logging.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ro.cfg = cfg
	ro.log = log
	return nil
}

func (ro *rootOptions) client() (*polygon.Client, error) {
	pc := ro.cfg.Polygon
	if pc.APIKey == "" {
		return nil, fmt.Errorf("polygon api key not set (export %s or set polygon.api_key)", config.APIKeyEnv)
	}

	timeout, err := pc.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return polygon.NewClient(pc.APIKey,
		polygon.WithBaseURL(pc.BaseURL),
		polygon.WithTimeout(timeout),
		polygon.WithRateLimit(pc.RequestsPerMinute),
		polygon.WithLogger(ro.log),
	), nil
}

// parseTime accepts RFC3339 (with or without fractional seconds) or a
// YYYY-MM-DD date at midnight UTC.
func parseTime(flag, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad --%s %q: want RFC3339 or YYYY-MM-DD", flag, s)
	}
	return t, nil
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
