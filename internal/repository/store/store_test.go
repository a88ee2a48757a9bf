package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "rouse/internal/domain/alarm"
)

// openTestStore opens a store over a temp file and closes it with the test.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

// TestStore_FreshDatabaseNotFound verifies an empty database reports ErrNotFound.
func TestStore_FreshDatabaseNotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

// TestStore_SaveLoadRoundtrip ensures the full state survives a reopen.
func TestStore_SaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(context.Background(), path)
	require.NoError(t, err)

	want := &PersistedState{
		Schedules: []*domain.Schedule{
			{
				ID:      1,
				Hour:    7,
				Repeat:  domain.RepeatDaily,
				Enabled: true,
				Snooze:  9 * time.Minute,
				Ramp:    "gentle",
			},
			{
				ID:       2,
				Hour:     9,
				Minute:   30,
				Repeat:   domain.RepeatWeekdays,
				Weekdays: []time.Weekday{time.Saturday, time.Sunday},
			},
		},
		Status: &domain.Status{
			State:            domain.StateArmed,
			ActiveScheduleID: 1,
			EnteredAt:        time.Date(2026, time.March, 10, 6, 30, 0, 0, time.UTC),
			Revision:         4,
		},
		Revision: 4,
	}

	require.NoError(t, s.Save(context.Background(), want))
	require.NoError(t, s.Close())

	// Reopen: migration is a no-op, state is intact.
	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.Revision, got.Revision)
	require.Equal(t, want.Schedules, got.Schedules)
	require.Equal(t, want.Status.State, got.Status.State)
	require.Equal(t, want.Status.ActiveScheduleID, got.Status.ActiveScheduleID)
	require.True(t, want.Status.EnteredAt.Equal(got.Status.EnteredAt))
}

// TestStore_SaveReplacesPreviousState checks saves are whole-state, not additive.
func TestStore_SaveReplacesPreviousState(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	first := &PersistedState{
		Schedules: []*domain.Schedule{{ID: 1, Hour: 7, Repeat: domain.RepeatDaily}},
		Revision:  1,
	}
	require.NoError(t, s.Save(ctx, first))

	second := &PersistedState{
		Schedules: []*domain.Schedule{{ID: 2, Hour: 8, Repeat: domain.RepeatDaily}},
		Revision:  2,
	}
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Schedules, 1)
	require.Equal(t, uint64(2), got.Schedules[0].ID)
	require.Equal(t, uint64(2), got.Revision)
}
