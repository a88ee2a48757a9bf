package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	domain "rouse/internal/domain/alarm"
)

var (
	// errMalformedTime is returned for wake-up times not in HH:MM form.
	errMalformedTime = errors.New("time must be in HH:MM form")
	// errUnknownWeekday is returned for unrecognized weekday names.
	errUnknownWeekday = errors.New("unknown weekday")
)

var (
	// scheduleTime is the wake-up time in HH:MM form.
	scheduleTime string
	// scheduleRepeat is the repeat rule: none, daily or weekdays.
	scheduleRepeat string
	// scheduleDays holds weekday names for the weekdays rule.
	scheduleDays []string
	// scheduleSnooze is the snooze duration.
	scheduleSnooze time.Duration
	// scheduleRamp names the volume ramp profile.
	scheduleRamp string
	// scheduleDisabled creates or updates the schedule in disabled state.
	scheduleDisabled bool
)

// scheduleCmd groups schedule management subcommands.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage wake-up schedules.",
}

// scheduleListCmd prints all schedules.
var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all wake-up schedules.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		schedules, err := client.Schedules(cmd.Context())
		if err != nil {
			return err
		}

		if len(schedules) == 0 {
			cmd.Println("no schedules")

			return nil
		}

		for _, schedule := range schedules {
			cmd.Println(formatSchedule(schedule))
		}

		return nil
	},
}

// scheduleAddCmd creates a schedule from flags.
var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a wake-up schedule.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		schedule, err := scheduleFromFlags()
		if err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		created, err := client.CreateSchedule(cmd.Context(), schedule)
		if err != nil {
			return err
		}

		cmd.Println(formatSchedule(created))

		return nil
	},
}

// scheduleSetCmd replaces an existing schedule from flags.
var scheduleSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Replace a wake-up schedule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("malformed schedule id %q: %w", args[0], err)
		}

		schedule, err := scheduleFromFlags()
		if err != nil {
			return err
		}

		schedule.ID = id

		client, err := newClient()
		if err != nil {
			return err
		}

		updated, err := client.UpdateSchedule(cmd.Context(), schedule)
		if err != nil {
			return err
		}

		cmd.Println(formatSchedule(updated))

		return nil
	},
}

// scheduleRemoveCmd deletes a schedule by ID.
var scheduleRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a wake-up schedule.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("malformed schedule id %q: %w", args[0], err)
		}

		client, err := newClient()
		if err != nil {
			return err
		}

		if err := client.DeleteSchedule(cmd.Context(), id); err != nil {
			return err
		}

		cmd.Printf("schedule %d removed\n", id)

		return nil
	},
}

// scheduleFromFlags builds a schedule from the shared add/set flags.
func scheduleFromFlags() (*domain.Schedule, error) {
	hour, minute, err := parseClock(scheduleTime)
	if err != nil {
		return nil, err
	}

	weekdays, err := parseWeekdays(scheduleDays)
	if err != nil {
		return nil, err
	}

	return &domain.Schedule{
		Hour:     hour,
		Minute:   minute,
		Repeat:   domain.RepeatKind(scheduleRepeat),
		Weekdays: weekdays,
		Enabled:  !scheduleDisabled,
		Snooze:   scheduleSnooze,
		Ramp:     scheduleRamp,
	}, nil
}

// parseClock parses "HH:MM" into hour and minute.
func parseClock(value string) (int, int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", errMalformedTime, value)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errMalformedTime, value)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errMalformedTime, value)
	}

	return hour, minute, nil
}

// weekdayNames maps flag values to weekdays.
var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// parseWeekdays converts short weekday names to time.Weekday values.
func parseWeekdays(names []string) ([]time.Weekday, error) {
	if len(names) == 0 {
		return nil, nil
	}

	weekdays := make([]time.Weekday, 0, len(names))

	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", errUnknownWeekday, name)
		}

		weekdays = append(weekdays, day)
	}

	return weekdays, nil
}

// formatSchedule renders one schedule line for listings.
func formatSchedule(schedule *domain.Schedule) string {
	var b strings.Builder

	fmt.Fprintf(&b, "#%d %02d:%02d %s", schedule.ID, schedule.Hour, schedule.Minute, schedule.Repeat)

	if schedule.Repeat == domain.RepeatWeekdays {
		names := make([]string, 0, len(schedule.Weekdays))
		for _, day := range schedule.Weekdays {
			names = append(names, strings.ToLower(day.String()[:3]))
		}

		fmt.Fprintf(&b, " [%s]", strings.Join(names, ","))
	}

	fmt.Fprintf(&b, " snooze=%s", schedule.Snooze)

	if schedule.Ramp != "" {
		fmt.Fprintf(&b, " ramp=%s", schedule.Ramp)
	}

	if !schedule.Enabled {
		b.WriteString(" (disabled)")
	}

	return b.String()
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	for _, cmd := range []*cobra.Command{scheduleAddCmd, scheduleSetCmd} {
		cmd.Flags().StringVarP(&scheduleTime, "time", "t", "", "wake-up time in HH:MM form")
		cmd.Flags().StringVarP(&scheduleRepeat, "repeat", "r", string(domain.RepeatDaily), "repeat rule: none, daily or weekdays")
		cmd.Flags().StringSliceVarP(&scheduleDays, "days", "d", nil, "weekday names for the weekdays rule (e.g. mon,tue,fri)")
		cmd.Flags().DurationVarP(&scheduleSnooze, "snooze", "s", domain.DefaultSnooze, "snooze duration")
		cmd.Flags().StringVar(&scheduleRamp, "ramp", "", "volume ramp profile name")
		cmd.Flags().BoolVar(&scheduleDisabled, "disabled", false, "create the schedule disabled")

		if err := cmd.MarkFlagRequired("time"); err != nil {
			panic(err)
		}
	}

	scheduleCmd.AddCommand(scheduleListCmd, scheduleAddCmd, scheduleSetCmd, scheduleRemoveCmd)
	rootCmd.AddCommand(scheduleCmd)
}
