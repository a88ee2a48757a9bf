package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSchedule_Validate covers field range checks and default normalization.
func TestSchedule_Validate(t *testing.T) {
	t.Parallel()

	// Hour out of range.
	s := &Schedule{Hour: 24, Repeat: RepeatDaily}
	require.ErrorIs(t, s.Validate(), ErrValidation)

	// Minute out of range.
	s = &Schedule{Minute: 60, Repeat: RepeatDaily}
	require.ErrorIs(t, s.Validate(), ErrValidation)

	// Unknown repeat rule.
	s = &Schedule{Repeat: RepeatKind("hourly")}
	require.ErrorIs(t, s.Validate(), ErrValidation)

	// Weekdays with the daily rule.
	s = &Schedule{Repeat: RepeatDaily, Weekdays: []time.Weekday{time.Monday}}
	require.ErrorIs(t, s.Validate(), ErrValidation)

	// Weekdays rule without days.
	s = &Schedule{Repeat: RepeatWeekdays}
	require.ErrorIs(t, s.Validate(), ErrValidation)

	// Valid daily schedule gets the default snooze.
	s = &Schedule{Hour: 7, Repeat: RepeatDaily}
	require.NoError(t, s.Validate())
	require.Equal(t, DefaultSnooze, s.Snooze)

	// Weekday list is sorted and deduplicated.
	s = &Schedule{
		Hour:     7,
		Repeat:   RepeatWeekdays,
		Weekdays: []time.Weekday{time.Friday, time.Monday, time.Friday},
	}
	require.NoError(t, s.Validate())
	require.Equal(t, []time.Weekday{time.Monday, time.Friday}, s.Weekdays)
}

// TestSchedule_NextOccurrence_Daily checks same-day and next-day resolution in UTC.
func TestSchedule_NextOccurrence_Daily(t *testing.T) {
	t.Parallel()

	s := &Schedule{ID: 1, Hour: 7, Minute: 0, Repeat: RepeatDaily, Enabled: true}

	// Before the trigger: fires today.
	from := time.Date(2026, time.March, 10, 6, 59, 50, 0, time.UTC)
	require.Equal(t, time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC), s.NextOccurrence(from))

	// Exactly at the trigger: fires tomorrow (occurrences are strictly after from).
	from = time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, time.March, 11, 7, 0, 0, 0, time.UTC), s.NextOccurrence(from))

	// Non-UTC input is interpreted on the UTC wall clock.
	loc := time.FixedZone("UTC+3", 3*60*60)
	from = time.Date(2026, time.March, 10, 8, 0, 0, 0, loc) // 05:00 UTC
	require.Equal(t, time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC), s.NextOccurrence(from))
}

// TestSchedule_NextOccurrence_Weekdays verifies the weekday rule skips excluded days.
func TestSchedule_NextOccurrence_Weekdays(t *testing.T) {
	t.Parallel()

	s := &Schedule{
		ID:       2,
		Hour:     6,
		Minute:   30,
		Repeat:   RepeatWeekdays,
		Weekdays: []time.Weekday{time.Monday, time.Friday},
		Enabled:  true,
	}

	// Saturday morning: next firing is Monday.
	from := time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
	got := s.NextOccurrence(from)
	require.Equal(t, time.Monday, got.Weekday())
	require.Equal(t, time.Date(2026, time.March, 9, 6, 30, 0, 0, time.UTC), got)

	// Monday after the trigger: next firing is Friday.
	from = time.Date(2026, time.March, 9, 7, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, time.March, 13, 6, 30, 0, 0, time.UTC), s.NextOccurrence(from))
}

// TestSchedule_NextOccurrence_Disabled ensures disabled schedules never occur.
func TestSchedule_NextOccurrence_Disabled(t *testing.T) {
	t.Parallel()

	s := &Schedule{ID: 3, Hour: 7, Repeat: RepeatDaily, Enabled: false}
	require.True(t, s.NextOccurrence(time.Now()).IsZero())
}

// TestSchedule_Clone verifies deep copies do not share the weekday slice.
func TestSchedule_Clone(t *testing.T) {
	t.Parallel()

	s := &Schedule{
		ID:       4,
		Repeat:   RepeatWeekdays,
		Weekdays: []time.Weekday{time.Monday},
	}

	cloned := s.Clone()
	cloned.Weekdays[0] = time.Sunday

	require.Equal(t, time.Monday, s.Weekdays[0])
}
