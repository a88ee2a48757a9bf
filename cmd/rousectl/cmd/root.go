package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"rouse/internal/service/remote"
	"rouse/internal/version"
)

// defaultDaemonAddress is where a locally running daemon listens.
const defaultDaemonAddress = "127.0.0.1:8533"

var (
	// daemonAddress is the daemon's HTTP API address.
	daemonAddress string

	// rootCmd represents the base command for controlling a running daemon.
	rootCmd = &cobra.Command{
		Use:   "rousectl",
		Short: "Control a running wake-up alarm daemon.",
		Long: `Command line client for the alarm daemon's HTTP API.

Inspects alarm status, manages wake-up schedules and snoozes or dismisses an
active ring on a daemon running locally or elsewhere on the network.`,
		SilenceUsage: true,
	}
)

// Execute runs the rousectl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient connects to the daemon selected by the --address flag.
func newClient() (*remote.Client, error) {
	return remote.New(daemonAddress)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&daemonAddress, "address", "a", defaultDaemonAddress, "daemon HTTP API address")
}
