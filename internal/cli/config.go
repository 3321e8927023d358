package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nosark/polygon-io-playground/config"
)

func newConfigCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage configuration files.

Examples:
  candles config init -o candles.yaml
  candles config validate -f candles.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created default configuration: %s\n", output)
			fmt.Fprintf(out, "Set %s (or polygon.api_key) and run:\n", config.APIKeyEnv)
			fmt.Fprintf(out, "  candles --config %s build --date 2024-01-02\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "candles.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = ro.ConfigPath
			}
			if path == "" {
				return fmt.Errorf("-f or --config is required")
			}

			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			key := "not set"
			if cfg.Polygon.APIKey != "" {
				key = "set"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid: %s\n", path)
			fmt.Fprintf(out, "  Polygon: %s (api key %s, %d req/min)\n", cfg.Polygon.BaseURL, key, cfg.Polygon.RequestsPerMinute)
			fmt.Fprintf(out, "  Aggregation: %s every %s (finalize=%t)\n", cfg.Aggregation.Ticker, cfg.Aggregation.Window, cfg.Aggregation.Finalize)
			fmt.Fprintf(out, "  Store: %s\n", cfg.Store.Type)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (default --config)")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
