package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"olie/internal/config"
	"olie/internal/util"
)

const version = "1.0.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "olie",
	Short: "Olie ERP production board service",
	Long: `olie serves the production kanban: boards whose cards are grouped into status
columns and reordered by drag and drop, backed by SQLite.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", util.EnvOrDefault("OLIE_CONFIG", "olie.yaml"), "Path to YAML config file")
	rootCmd.AddCommand(serveCmd, snapshotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies flags the user set
// explicitly on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	overrides := map[string]*string{
		"addr":      &cfg.Addr,
		"db":        &cfg.Database.Path,
		"driver":    &cfg.Database.Driver,
		"static":    &cfg.StaticDir,
		"log-level": &cfg.LogLevel,
	}
	for name, target := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*target = f.Value.String()
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
