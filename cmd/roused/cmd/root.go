package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rouse/internal/config"
	"rouse/internal/service/daemon"
	"rouse/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// envFile path to an optional dotenv file with secrets.
	envFile string

	// rootCmd represents the base command for running the alarm daemon.
	rootCmd = &cobra.Command{
		Use:   "roused [listen-address]",
		Short: "Run the wake-up alarm daemon.",
		Long: `Starts the alarm daemon that evaluates schedules, drives audio playback
and dismissal gestures, and serves the HTTP control API.

The daemon listens on the configured address or on the address given as
argument (e.g. :8533, 127.0.0.1:9000). Schedules and alarm state are
persisted to a local sqlite database and survive restarts.

Secrets (sync token, MQTT password) are read from the environment, optionally
seeded from a dotenv file; they are never stored in the YAML settings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return daemon.Run(ctx, &daemon.Options{
				ConfigPath:    configPath,
				EnvFile:       envFile,
				ListenAddress: listenAddress,
			})
		},
	}
)

// Execute runs the roused CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&envFile, "env-file", "e", "", "path to dotenv file with secrets")
}
