package alarm

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// RepeatKind selects how often a schedule recurs.
type RepeatKind string

const (
	// RepeatNone marks a one-shot schedule: it fires at the next occurrence
	// of its time of day and is disabled by the engine afterwards.
	RepeatNone RepeatKind = "none"
	// RepeatDaily fires every day at the configured time of day.
	RepeatDaily RepeatKind = "daily"
	// RepeatWeekdays fires only on the days listed in Schedule.Weekdays.
	RepeatWeekdays RepeatKind = "weekdays"
)

// Schedule is a configured alarm trigger.
// Trigger times are always interpreted in UTC; localization happens at the
// API boundary, never inside the engine.
type Schedule struct {
	// ID uniquely identifies the schedule. Zero means "not assigned yet".
	ID uint64 `json:"id"`
	// Hour is the trigger hour of day in UTC (0-23).
	Hour int `json:"hour"`
	// Minute is the trigger minute (0-59).
	Minute int `json:"minute"`
	// Repeat selects the recurrence rule.
	Repeat RepeatKind `json:"repeat"`
	// Weekdays lists the firing days when Repeat is RepeatWeekdays.
	// It must be empty for the other repeat kinds.
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	// Enabled gates the schedule; disabled schedules never arm.
	Enabled bool `json:"enabled"`
	// Snooze is how long a snoozed ring sleeps before ringing again.
	Snooze time.Duration `json:"snooze"`
	// Ramp names the volume ramp profile used when the schedule rings.
	// An empty name selects the default profile.
	Ramp string `json:"ramp,omitempty"`
}

var (
	// ErrValidation is the base error wrapped by all schedule validation failures.
	ErrValidation = errors.New("invalid schedule")
	// errUnknownRepeat is returned when the repeat kind is not one of the known values.
	errUnknownRepeat = errors.New("unknown repeat rule")
)

// DefaultSnooze is applied when a schedule is created without a snooze duration.
const DefaultSnooze = 9 * time.Minute

// Validate checks the schedule fields and normalizes defaults.
// It mutates the receiver only to fill the snooze default and to sort weekdays.
func (s *Schedule) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: schedule is not set", ErrValidation)
	}

	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrValidation, s.Hour)
	}

	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrValidation, s.Minute)
	}

	switch s.Repeat {
	case RepeatNone, RepeatDaily:
		if len(s.Weekdays) > 0 {
			return fmt.Errorf("%w: weekdays are only valid with the weekdays rule", ErrValidation)
		}
	case RepeatWeekdays:
		if len(s.Weekdays) == 0 {
			return fmt.Errorf("%w: weekdays rule requires at least one day", ErrValidation)
		}

		for _, day := range s.Weekdays {
			if day < time.Sunday || day > time.Saturday {
				return fmt.Errorf("%w: weekday %d out of range", ErrValidation, day)
			}
		}

		slices.Sort(s.Weekdays)
		s.Weekdays = slices.Compact(s.Weekdays)
	default:
		return fmt.Errorf("%w: %q", errUnknownRepeat, s.Repeat)
	}

	if s.Snooze < 0 {
		return fmt.Errorf("%w: snooze duration must not be negative", ErrValidation)
	}

	if s.Snooze == 0 {
		s.Snooze = DefaultSnooze
	}

	return nil
}

// NextOccurrence returns the first trigger time strictly after from,
// derived purely from the wall clock and the schedule fields so the result
// survives clock jumps and missed ticks. A zero time means the schedule has
// no further occurrences (disabled, or a weekday set that is empty).
func (s *Schedule) NextOccurrence(from time.Time) time.Time {
	if !s.Enabled {
		return time.Time{}
	}

	from = from.UTC()

	candidate := time.Date(from.Year(), from.Month(), from.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
	if !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	if s.Repeat != RepeatWeekdays {
		return candidate
	}

	// Walk forward until the candidate lands on an allowed weekday.
	// The set is non-empty after validation, so seven steps always suffice.
	for range 7 {
		if slices.Contains(s.Weekdays, candidate.Weekday()) {
			return candidate
		}

		candidate = candidate.AddDate(0, 0, 1)
	}

	return time.Time{}
}

// Clone returns a deep copy of the schedule.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.Weekdays = slices.Clone(s.Weekdays)

	return &cloned
}

// CloneSchedules deep-copies a schedule slice.
func CloneSchedules(schedules []*Schedule) []*Schedule {
	if schedules == nil {
		return nil
	}

	cloned := make([]*Schedule, 0, len(schedules))
	for _, s := range schedules {
		cloned = append(cloned, s.Clone())
	}

	return cloned
}
