package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbitalcx/convoy/internal/config"
)

// configPath is bound to --config on the root command and read by every
// subcommand via internal/config.Load. Left empty, config.Path() resolves
// CONVOY_CONFIG or falls back to ./convoy.yaml.
var configPath string

// rootCmd is convoyd's entry point; subcommands hang off it and share the
// persistent --config flag.
var rootCmd = &cobra.Command{
	Use:   "convoyd",
	Short: "Multi-tenant customer-service router and AI response gateway",
	Long: `convoyd ingests inbound channel messages (WhatsApp, Telegram, Email,
Web), routes and debounces them per chat, and runs the AI response pipeline
against a tenant's configured agents, escalating to a human or a support
ticket when the rules say so.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to convoy.yaml (default: $CONVOY_CONFIG or ./convoy.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(routerctlCmd)
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}

func newLogger(levelName string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
