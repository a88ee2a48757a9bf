package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	domain "rouse/internal/domain/alarm"
)

// statusCmd prints the daemon's current alarm status.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current alarm status.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}

		printStatus(cmd, status)

		return nil
	},
}

// printStatus renders a status the way `rousectl status` shows it.
func printStatus(cmd *cobra.Command, status *domain.Status) {
	cmd.Printf("state:    %s\n", status.State)

	if status.ActiveScheduleID != 0 {
		cmd.Printf("schedule: %d\n", status.ActiveScheduleID)
	}

	if !status.EnteredAt.IsZero() {
		cmd.Printf("since:    %s\n", status.EnteredAt.Format("2006-01-02 15:04:05 MST"))
	}

	cmd.Printf("present:  %t\n", status.Present)

	if !status.LastMotionAt.IsZero() {
		cmd.Printf("motion:   %s\n", status.LastMotionAt.Format("2006-01-02 15:04:05 MST"))
	}

	if !status.LastSyncAt.IsZero() {
		sync := status.LastSyncAt.Format("2006-01-02 15:04:05 MST")
		if status.LastSyncError != "" {
			sync = fmt.Sprintf("%s (error: %s)", sync, status.LastSyncError)
		}

		cmd.Printf("sync:     %s\n", sync)
	}

	cmd.Printf("revision: %d\n", status.Revision)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(statusCmd)
}
