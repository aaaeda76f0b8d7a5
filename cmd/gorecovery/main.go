// Command gorecovery runs the account recovery service and its tooling.
//
//	gorecovery serve                 start the HTTP API
//	gorecovery migrate up            apply directory schema migrations
//	gorecovery loadtest              benchmark resolve and validate against Redis
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goRecovery/internal/appconfig"
	"github.com/MrEthical07/goRecovery/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "gorecovery",
	Short:         "Account recovery service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultConfig := os.Getenv("GORECOVERY_CONFIG")
	if strings.TrimSpace(defaultConfig) == "" {
		defaultConfig = appconfig.DefaultConfigPath
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "path to gorecovery.toml")

	rootCmd.AddCommand(serveCmd, migrateCmd, loadtestCmd)
}

// loadConfig reads the config and initialises the global logger from it.
func loadConfig() (appconfig.Config, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gorecovery: %v\n", err)
		os.Exit(1)
	}
}
