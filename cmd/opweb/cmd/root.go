package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/opweb/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "opweb",
	Short: "OP.WEB is a small self-hosted forum server",
	Long: `OP.WEB forum server with an encrypted single-document store.
Settings are read from OPWEB_* environment variables; flags override them.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return config.Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, nil
}
