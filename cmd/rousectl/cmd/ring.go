package cmd

import (
	"github.com/spf13/cobra"
)

// snoozeCmd snoozes the active ring.
var snoozeCmd = &cobra.Command{
	Use:   "snooze",
	Short: "Snooze the active ring.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		status, err := client.Snooze(cmd.Context())
		if err != nil {
			return err
		}

		printStatus(cmd, status)

		return nil
	},
}

// dismissCmd dismisses the active ring.
var dismissCmd = &cobra.Command{
	Use:   "dismiss",
	Short: "Dismiss the active ring.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		status, err := client.Dismiss(cmd.Context())
		if err != nil {
			return err
		}

		printStatus(cmd, status)

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(snoozeCmd, dismissCmd)
}
